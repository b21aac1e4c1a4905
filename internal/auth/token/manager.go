package token

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RefreshMargin is how long before expiry a stored access token is treated as stale.
const RefreshMargin = 5 * time.Minute

// defaultLifetime applies when the token endpoint omits expires_in.
const defaultLifetime = time.Hour

// Store is the persistence the manager needs. *db.TokenStore satisfies it.
type Store interface {
	Get(ctx context.Context, provider string) (*models.StoredToken, error)
	Save(ctx context.Context, tok *models.StoredToken) error
	List(ctx context.Context) ([]models.StoredToken, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return f(ctx, refreshToken)
}

// OAuthRefresher refreshes against the config's token endpoint.
type OAuthRefresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

func (r OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	return r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// Status is the connection state reported to admins. Token values are omitted.
type Status struct {
	Provider  string     `json:"provider"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Manager hands out access tokens, refreshing them shortly before expiry.
// It holds no in-process cache; concurrent refreshes for one provider both
// hit the token endpoint and the last write wins.
type Manager struct {
	store      Store
	refreshers map[string]Refresher
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a token manager. refreshers is keyed by provider.
func NewManager(store Store, refreshers map[string]Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		refreshers: refreshers,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAccessToken returns a usable access token for provider.
func (m *Manager) GetAccessToken(ctx context.Context, provider string) (string, error) {
	stored, err := m.store.Get(ctx, provider)
	if err != nil {
		return "", err
	}

	now := m.now()
	if stored.AccessToken != "" && now.Before(stored.ExpiresAt.Add(-RefreshMargin)) {
		return stored.AccessToken, nil
	}

	return m.refresh(ctx, stored, now)
}

func (m *Manager) refresh(ctx context.Context, stored *models.StoredToken, now time.Time) (string, error) {
	log := logging.FromContext(ctx, m.logger).With(zap.String("provider", stored.Provider))

	refresher, ok := m.refreshers[stored.Provider]
	if !ok {
		return "", apperr.Refresh(stored.Provider, fmt.Errorf("no refresher configured"))
	}

	log.Info("access token expired or expiring, refreshing", zap.Time("expires_at", stored.ExpiresAt))
	newToken, err := refresher.Refresh(ctx, stored.RefreshToken)
	m.metrics.ObserveTokenRefresh(stored.Provider, err)
	if err != nil {
		if isPermanentRefreshError(err) {
			log.Warn("refresh token rejected, re-authentication required", zap.Error(err))
		} else {
			log.Warn("token refresh failed", zap.Error(err))
		}
		return "", apperr.Refresh(stored.Provider, err)
	}

	updated := *stored
	updated.AccessToken = newToken.AccessToken
	updated.ExpiresAt = expiryOf(newToken, now)
	// Not every refresh response carries a refresh token; keep the old one then.
	if newToken.RefreshToken != "" && newToken.RefreshToken != stored.RefreshToken {
		log.Info("rotating refresh token")
		updated.RefreshToken = newToken.RefreshToken
	}
	if err := m.store.Save(ctx, &updated); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	log.Info("refreshed access token", zap.Time("expires_at", updated.ExpiresAt))
	return updated.AccessToken, nil
}

// SaveFromExchange stores the result of an authorization-code exchange.
// Google omits the refresh token on repeat consent; the stored one is kept then.
func (m *Manager) SaveFromExchange(ctx context.Context, provider string, tok *oauth2.Token) error {
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		if existing, err := m.store.Get(ctx, provider); err == nil {
			refreshToken = existing.RefreshToken
		}
	}
	if refreshToken == "" {
		return apperr.Auth(provider, "no refresh token returned; revoke app access and sign in again", 0)
	}

	return m.store.Save(ctx, &models.StoredToken{
		Provider:     provider,
		RefreshToken: refreshToken,
		AccessToken:  tok.AccessToken,
		ExpiresAt:    expiryOf(tok, m.now()),
	})
}

// Clear deletes every stored credential.
func (m *Manager) Clear(ctx context.Context) (int64, error) {
	deleted, err := m.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Info("cleared stored tokens", zap.Int64("deleted", deleted))
	return deleted, nil
}

// Statuses reports which known providers hold a credential.
func (m *Manager) Statuses(ctx context.Context) ([]Status, error) {
	tokens, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[string]models.StoredToken, len(tokens))
	for _, t := range tokens {
		byProvider[t.Provider] = t
	}

	statuses := make([]Status, 0, len(models.KnownTokenProviders))
	for _, p := range models.KnownTokenProviders {
		st := Status{Provider: p}
		if t, ok := byProvider[p]; ok {
			expires, updated := t.ExpiresAt, t.UpdatedAt
			st.Connected = true
			st.ExpiresAt = &expires
			st.UpdatedAt = &updated
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func expiryOf(tok *oauth2.Token, now time.Time) time.Time {
	if tok.Expiry.IsZero() {
		return now.Add(defaultLifetime)
	}
	return tok.Expiry
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
