package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateSessionName = "photopick_oauth"
	deviceName       = "photopick"
)

// TokenSaver persists the result of a code exchange.
type TokenSaver interface {
	SaveFromExchange(ctx context.Context, provider string, tok *oauth2.Token) error
}

// Flow serves the per-provider sign-in and callback routes.
type Flow struct {
	creds         Credentials
	sessions      sessions.Store
	tokens        TokenSaver
	publicBaseURL string
	homeURL       string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewFlow(creds Credentials, store sessions.Store, tokens TokenSaver, publicBaseURL, homeURL string, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if homeURL == "" {
		homeURL = "/admin"
	}
	return &Flow{
		creds:         creds,
		sessions:      store,
		tokens:        tokens,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		homeURL:       homeURL,
		logger:        logger,
	}
}

// WithHTTPClient sets the client used for the code exchange.
func (f *Flow) WithHTTPClient(c *http.Client) *Flow {
	f.httpClient = c
	return f
}

// isPrivateIP checks if the host is a private/local IP address
func isPrivateIP(host string) bool {
	hostOnly := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostOnly = h
	}

	if hostOnly == "localhost" || hostOnly == "127.0.0.1" {
		return false // localhost doesn't require device_id
	}

	ip := net.ParseIP(hostOnly)
	if ip == nil {
		return false
	}
	return ip.IsPrivate()
}

func (f *Flow) redirectURL(r *http.Request, provider string) string {
	base := f.publicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return fmt.Sprintf("%s/auth/%s/callback", base, url.PathEscape(provider))
}

// HandleLogin redirects to Google's consent page for the provider in the URL.
func (f *Flow) HandleLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !f.creds.Configured() {
		writeJSONError(w, http.StatusServiceUnavailable, "Google OAuth client is not configured")
		return
	}
	config, err := GetOAuthConfig(f.creds, provider, f.redirectURL(r, provider))
	if err != nil {
		writeJSONError(w, apperr.HTTPStatus(err), apperr.Message(err))
		return
	}

	state := randomHex(16)
	session, _ := f.sessions.Get(r, stateSessionName)
	session.Values["state_"+provider] = state
	session.Options = &sessions.Options{Path: "/auth", MaxAge: 600, HttpOnly: true, SameSite: http.SameSiteLaxMode}
	if err := session.Save(r, w); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to store sign-in state")
		return
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}
	// Google requires device_id and device_name for private IP addresses
	if isPrivateIP(r.Host) {
		opts = append(opts,
			oauth2.SetAuthURLParam("device_id", randomHex(16)),
			oauth2.SetAuthURLParam("device_name", deviceName),
		)
	}

	logging.FromContext(r.Context(), f.logger).Info("starting OAuth sign-in", zap.String("provider", provider))
	http.Redirect(w, r, config.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
