package google

import (
	"fmt"
	"strings"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes requested per token provider. Both are read-only.
var Scopes = map[string][]string{
	models.ProviderGoogleDrive:  {"https://www.googleapis.com/auth/drive.readonly"},
	models.ProviderGooglePhotos: {"https://www.googleapis.com/auth/photospicker.mediaitems.readonly"},
}

// Credentials identifies the OAuth client. AuthURL and TokenURL override
// Google's endpoints when set.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// Configured reports whether a client ID and secret are present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// GetOAuthConfig returns the OAuth2 config for provider.
func GetOAuthConfig(creds Credentials, provider, redirectURL string) (*oauth2.Config, error) {
	scopes, ok := Scopes[provider]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("provider %q does not use OAuth sign-in", provider))
	}

	endpoint := googleOAuth.Endpoint
	if creds.AuthURL != "" {
		endpoint.AuthURL = creds.AuthURL
	}
	if creds.TokenURL != "" {
		endpoint.TokenURL = creds.TokenURL
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       append([]string(nil), scopes...),
		Endpoint:     endpoint,
	}, nil
}
