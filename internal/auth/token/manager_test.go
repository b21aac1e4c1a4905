package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *db.TokenStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db.NewTokenStore(gdb)
}

type countingRefresher struct {
	calls int
	token *oauth2.Token
	err   error
}

func (c *countingRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.token, nil
}

func seed(t *testing.T, store *db.TokenStore, expiresAt time.Time) {
	t.Helper()
	err := store.Save(context.Background(), &models.StoredToken{
		Provider:     models.ProviderGoogleDrive,
		RefreshToken: "refresh-old",
		AccessToken:  "access-old",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestGetAccessToken_FreshTokenIsReturnedWithoutRefresh(t *testing.T) {
	store := newTestStore(t)
	expiresAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, expiresAt)

	refresher := &countingRefresher{}
	now := expiresAt.Add(-RefreshMargin - time.Second)
	mgr := NewManager(store, map[string]Refresher{models.ProviderGoogleDrive: refresher},
		WithClock(func() time.Time { return now }))

	got, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got != "access-old" {
		t.Fatalf("expected cached token, got %q", got)
	}
	if refresher.calls != 0 {
		t.Fatalf("expected no refresh, got %d calls", refresher.calls)
	}
}

func TestGetAccessToken_InsideMarginRefreshesOnceAndKeepsRefreshToken(t *testing.T) {
	store := newTestStore(t)
	expiresAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, expiresAt)

	newExpiry := expiresAt.Add(time.Hour)
	refresher := &countingRefresher{token: &oauth2.Token{AccessToken: "access-new", Expiry: newExpiry}}
	now := expiresAt.Add(-RefreshMargin)
	mgr := NewManager(store, map[string]Refresher{models.ProviderGoogleDrive: refresher},
		WithClock(func() time.Time { return now }))

	got, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got != "access-new" {
		t.Fatalf("expected refreshed token, got %q", got)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refresher.calls)
	}

	stored, err := store.Get(context.Background(), models.ProviderGoogleDrive)
	if err != nil {
		t.Fatalf("load stored token: %v", err)
	}
	if stored.RefreshToken != "refresh-old" {
		t.Fatalf("expected previous refresh token to be kept, got %q", stored.RefreshToken)
	}
	if !stored.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("expected expiry %v, got %v", newExpiry, stored.ExpiresAt)
	}

	// The persisted token is now fresh, so a second call must not refresh again.
	if _, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive); err != nil {
		t.Fatalf("second GetAccessToken() error = %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected refresh count to stay at 1, got %d", refresher.calls)
	}
}

func TestGetAccessToken_PersistsRotatedRefreshTokenAndDefaultsExpiry(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, now.Add(-time.Minute))

	refresher := &countingRefresher{token: &oauth2.Token{AccessToken: "access-new", RefreshToken: "refresh-new"}}
	mgr := NewManager(store, map[string]Refresher{models.ProviderGoogleDrive: refresher},
		WithClock(func() time.Time { return now }))

	if _, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive); err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	stored, _ := store.Get(context.Background(), models.ProviderGoogleDrive)
	if stored.RefreshToken != "refresh-new" {
		t.Fatalf("expected rotated refresh token, got %q", stored.RefreshToken)
	}
	if want := now.Add(time.Hour); !stored.ExpiresAt.Equal(want) {
		t.Fatalf("expected default one hour expiry %v, got %v", want, stored.ExpiresAt)
	}
}

func TestGetAccessToken_MissingCredentialIsNoToken(t *testing.T) {
	mgr := NewManager(newTestStore(t), nil)

	_, err := mgr.GetAccessToken(context.Background(), models.ProviderGooglePhotos)
	if !errors.Is(err, apperr.ErrNoToken) {
		t.Fatalf("expected no-token error, got %v", err)
	}
}

func TestGetAccessToken_RejectedRefreshIsRefreshError(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seed(t, store, now)

	refresher := &countingRefresher{err: errors.New(`oauth2: "invalid_grant" "Token has been expired or revoked."`)}
	mgr := NewManager(store, map[string]Refresher{models.ProviderGoogleDrive: refresher},
		WithClock(func() time.Time { return now }))

	_, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive)
	if !errors.Is(err, apperr.ErrRefresh) {
		t.Fatalf("expected refresh error, got %v", err)
	}
	stored, _ := store.Get(context.Background(), models.ProviderGoogleDrive)
	if stored.AccessToken != "access-old" {
		t.Fatalf("expected stored token untouched, got %q", stored.AccessToken)
	}
}

func TestClearThenGetAccessTokenIsNoToken(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, time.Now().Add(time.Hour))
	mgr := NewManager(store, nil)

	deleted, err := mgr.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := mgr.GetAccessToken(context.Background(), models.ProviderGoogleDrive); !errors.Is(err, apperr.ErrNoToken) {
		t.Fatalf("expected no-token after clear, got %v", err)
	}
}

func TestSaveFromExchange_KeepsExistingRefreshToken(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, time.Now())
	mgr := NewManager(store, nil)

	err := mgr.SaveFromExchange(context.Background(), models.ProviderGoogleDrive, &oauth2.Token{
		AccessToken: "access-consent",
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SaveFromExchange() error = %v", err)
	}
	stored, _ := store.Get(context.Background(), models.ProviderGoogleDrive)
	if stored.RefreshToken != "refresh-old" || stored.AccessToken != "access-consent" {
		t.Fatalf("unexpected stored token %+v", stored)
	}

	err = mgr.SaveFromExchange(context.Background(), models.ProviderGooglePhotos, &oauth2.Token{AccessToken: "a"})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error without any refresh token, got %v", err)
	}
}

func TestStatusesReportsKnownProviders(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, time.Now().Add(time.Hour))
	mgr := NewManager(store, nil)

	statuses, err := mgr.Statuses(context.Background())
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Connected || statuses[0].Provider != models.ProviderGoogleDrive {
		t.Fatalf("expected googledrive connected, got %+v", statuses[0])
	}
	if statuses[1].Connected {
		t.Fatalf("expected googlephotos disconnected, got %+v", statuses[1])
	}
}

func TestOAuthRefresherPostsRefreshGrant(t *testing.T) {
	var grantType, refreshToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		grantType = r.PostForm.Get("grant_type")
		refreshToken = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3599}`))
	}))
	defer srv.Close()

	r := OAuthRefresher{Config: &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}}
	tok, err := r.Refresh(context.Background(), "refresh-123")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if grantType != "refresh_token" || refreshToken != "refresh-123" {
		t.Fatalf("unexpected form grant_type=%q refresh_token=%q", grantType, refreshToken)
	}
	if tok.AccessToken != "fresh" || tok.Expiry.IsZero() {
		t.Fatalf("unexpected token %+v", tok)
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: "oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}", permanent: true},
		{name: "revoked", errText: "token has been expired or revoked", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "temporary", errText: "temporarily_unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(assertErr(tt.errText))
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
