package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenStore persists one OAuth credential per provider.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Get returns the stored credential, or a NoToken error when none exists.
func (s *TokenStore) Get(ctx context.Context, provider string) (*models.StoredToken, error) {
	var tok models.StoredToken
	err := s.db.WithContext(ctx).Where("provider = ?", provider).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NoToken(provider)
	}
	if err != nil {
		return nil, fmt.Errorf("load token for %s: %w", provider, err)
	}
	return &tok, nil
}

// Save inserts or replaces the provider's row. Last writer wins.
func (s *TokenStore) Save(ctx context.Context, tok *models.StoredToken) error {
	if !models.IsKnownTokenProvider(tok.Provider) {
		return apperr.Validation(fmt.Sprintf("unknown token provider %q", tok.Provider))
	}
	if tok.RefreshToken == "" {
		return apperr.Validation("refresh token is required")
	}
	tok.UpdatedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"refresh_token", "access_token", "expires_at", "updated_at"}),
	}).Create(tok).Error
	if err != nil {
		return fmt.Errorf("save token for %s: %w", tok.Provider, err)
	}
	return nil
}

// List returns every stored credential ordered by provider.
func (s *TokenStore) List(ctx context.Context) ([]models.StoredToken, error) {
	var tokens []models.StoredToken
	if err := s.db.WithContext(ctx).Order("provider").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

// DeleteAll removes every stored credential and reports how many were deleted.
func (s *TokenStore) DeleteAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.StoredToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
