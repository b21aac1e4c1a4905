package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FolderStore keeps the admin-managed list of source folders.
type FolderStore struct {
	db *gorm.DB
}

func NewFolderStore(db *gorm.DB) *FolderStore {
	return &FolderStore{db: db}
}

// Upsert adds a folder or refreshes its name and link.
func (s *FolderStore) Upsert(ctx context.Context, folder *models.SourceFolder) error {
	if folder.FolderID == "" {
		return apperr.Validation("folder ID is required")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "name", "link"}),
	}).Create(folder).Error
	if err != nil {
		return fmt.Errorf("save folder %s: %w", folder.FolderID, err)
	}
	return nil
}

func (s *FolderStore) List(ctx context.Context) ([]models.SourceFolder, error) {
	var folders []models.SourceFolder
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

func (s *FolderStore) Get(ctx context.Context, folderID string) (*models.SourceFolder, error) {
	var folder models.SourceFolder
	err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("", fmt.Sprintf("folder %s not found", folderID))
	}
	if err != nil {
		return nil, fmt.Errorf("load folder %s: %w", folderID, err)
	}
	return &folder, nil
}

func (s *FolderStore) Delete(ctx context.Context, folderID string) error {
	result := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Delete(&models.SourceFolder{})
	if result.Error != nil {
		return fmt.Errorf("delete folder %s: %w", folderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("", fmt.Sprintf("folder %s not found", folderID))
	}
	return nil
}
