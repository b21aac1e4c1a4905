package models

import "time"

// Submission records one visitor's selection. Rows are never updated.
type Submission struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	SubmissionID     string    `gorm:"uniqueIndex:idx_submission_id;not null" json:"submissionId"`
	SelectedPhotoIDs []string  `gorm:"serializer:json;type:text" json:"photoIds"` // order and duplicates kept as submitted
	SubmittedAt      time.Time `gorm:"index" json:"submittedAt"`
	Provider         string    `json:"provider"`
	FolderID         string    `gorm:"index" json:"folderId,omitempty"`
	FolderName       string    `json:"folderName,omitempty"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	UserAgent        string    `json:"userAgent,omitempty"`
}

// PhotoCount returns the number of selected IDs, duplicates included.
func (s Submission) PhotoCount() int {
	return len(s.SelectedPhotoIDs)
}
