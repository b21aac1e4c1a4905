package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// HandleCallback verifies state, exchanges the code and stores the provider token.
func (f *Flow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	log := logging.FromContext(r.Context(), f.logger).With(zap.String("provider", provider))

	if denied := r.URL.Query().Get("error"); denied != "" {
		log.Warn("OAuth consent was not granted", zap.String("error", denied))
		writeJSONError(w, http.StatusBadRequest, "sign-in was cancelled: "+denied)
		return
	}

	session, _ := f.sessions.Get(r, stateSessionName)
	expected, _ := session.Values["state_"+provider].(string)
	state := r.URL.Query().Get("state")
	if expected == "" || state != expected {
		writeJSONError(w, http.StatusBadRequest, "Invalid state token")
		return
	}
	delete(session.Values, "state_"+provider)
	_ = session.Save(r, w)

	config, err := GetOAuthConfig(f.creds, provider, f.redirectURL(r, provider))
	if err != nil {
		writeJSONError(w, apperr.HTTPStatus(err), apperr.Message(err))
		return
	}

	ctx := r.Context()
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	tok, err := config.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		log.Warn("token exchange failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Token exchange failed")
		return
	}

	if err := f.tokens.SaveFromExchange(r.Context(), provider, tok); err != nil {
		log.Error("failed to save token", zap.Error(err))
		writeJSONError(w, apperr.HTTPStatus(err), apperr.Message(err))
		return
	}

	log.Info("provider connected", zap.Bool("has_refresh_token", tok.RefreshToken != ""))
	http.Redirect(w, r, f.homeURL+"?connected="+url.QueryEscape(provider), http.StatusFound)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": message})
}
