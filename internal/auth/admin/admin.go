// Package admin authenticates the single admin identity with a cookie session or HTTP basic auth.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionName      = "photopick_admin"
	authenticatedKey = "authenticated"
	usernameKey      = "username"
)

// Authenticator checks admin credentials and manages the admin session.
type Authenticator struct {
	username string
	password string // plain text or bcrypt hash
	store    *sessions.CookieStore
}

// New creates an authenticator with a cookie store keyed by secret.
func New(username, password, secret string, maxAge time.Duration) *Authenticator {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Authenticator{username: username, password: password, store: store}
}

// Store exposes the session store so other flows (OAuth state) share the secret.
func (a *Authenticator) Store() sessions.Store {
	return a.store
}

// CheckCredentials compares against the configured pair. An empty configured
// password rejects everything.
func (a *Authenticator) CheckCredentials(username, password string) bool {
	if a.password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	var passOK bool
	if isBcryptHash(a.password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(a.password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	}
	return userOK && passOK
}

// Login starts an admin session when the credentials match.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request, username, password string) (bool, error) {
	if !a.CheckCredentials(username, password) {
		return false, nil
	}
	session, _ := a.store.Get(r, SessionName)
	session.Values[authenticatedKey] = true
	session.Values[usernameKey] = username
	return true, session.Save(r, w)
}

// Logout expires the admin session cookie.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.store.Get(r, SessionName)
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// IsAuthenticated accepts a valid session cookie or basic auth credentials.
func (a *Authenticator) IsAuthenticated(r *http.Request) bool {
	if user, pass, ok := r.BasicAuth(); ok {
		return a.CheckCredentials(user, pass)
	}
	session, err := a.store.Get(r, SessionName)
	if err != nil {
		return false
	}
	ok, _ := session.Values[authenticatedKey].(bool)
	return ok
}

// Require rejects unauthenticated requests with 401 JSON.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsAuthenticated(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":     "authentication required",
				"needsAuth": true,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
