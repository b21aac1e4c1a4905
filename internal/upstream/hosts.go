package upstream

import (
	"net/url"
	"strings"
)

const googleMediaDomain = "googleusercontent.com"

// IsGoogleMediaURL reports whether raw is an https URL on Google's user
// content CDN. Only such URLs may receive a provider bearer token when they
// arrive from a client.
func IsGoogleMediaURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == googleMediaDomain || strings.HasSuffix(host, "."+googleMediaDomain)
}
