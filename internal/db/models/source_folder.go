package models

import "time"

// SourceFolder is a provider folder an admin has shared with visitors.
type SourceFolder struct {
	FolderID  string    `gorm:"primaryKey" json:"folderId"`
	Provider  string    `gorm:"not null;default:'googledrive'" json:"provider"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"createdAt"`
}
