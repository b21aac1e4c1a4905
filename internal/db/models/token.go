package models

import "time"

// Token providers. Each holds at most one credential row.
const (
	ProviderGoogleDrive  = "googledrive"
	ProviderGooglePhotos = "googlephotos"
)

// KnownTokenProviders lists providers that authenticate through OAuth.
var KnownTokenProviders = []string{ProviderGoogleDrive, ProviderGooglePhotos}

// IsKnownTokenProvider reports whether provider may own a StoredToken.
func IsKnownTokenProvider(provider string) bool {
	for _, p := range KnownTokenProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// StoredToken is the single OAuth credential kept for a provider.
type StoredToken struct {
	Provider     string `gorm:"primaryKey"` // one row per provider
	RefreshToken string `gorm:"not null"`
	AccessToken  string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}
