package db

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"gorm.io/gorm"
)

// MaxSubmissionResults caps Query; volume is expected to stay low.
const MaxSubmissionResults = 100

const createAttempts = 3

// NewSubmission is the input for SubmissionStore.Create.
type NewSubmission struct {
	PhotoIDs   []string
	Provider   string
	FolderID   string
	FolderName string
	IPAddress  string
	UserAgent  string
}

// SubmissionFilter narrows Query. Zero values are ignored.
type SubmissionFilter struct {
	DateFrom     time.Time
	DateTo       time.Time
	SubmissionID string
	FolderID     string
}

// SubmissionStore persists visitor selections.
type SubmissionStore struct {
	db    *gorm.DB
	now   func() time.Time
	newID func(time.Time) string
}

func NewSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{db: db, now: time.Now, newID: newSubmissionID}
}

// Create stores a submission and returns its generated ID.
func (s *SubmissionStore) Create(ctx context.Context, in NewSubmission) (string, error) {
	if len(in.PhotoIDs) == 0 {
		return "", apperr.Validation("photoIds must contain at least one photo ID")
	}

	ids := make([]string, len(in.PhotoIDs))
	copy(ids, in.PhotoIDs)

	submittedAt := s.now().UTC()
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		row := models.Submission{
			SubmissionID:     s.newID(submittedAt),
			SelectedPhotoIDs: ids,
			SubmittedAt:      submittedAt,
			Provider:         in.Provider,
			FolderID:         in.FolderID,
			FolderName:       in.FolderName,
			IPAddress:        in.IPAddress,
			UserAgent:        in.UserAgent,
		}
		err := s.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			return row.SubmissionID, nil
		}
		if !isDuplicateKey(err) {
			return "", fmt.Errorf("create submission: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("create submission: no unique id after %d attempts: %w", createAttempts, lastErr)
}

// Get returns one submission by its public ID.
func (s *SubmissionStore) Get(ctx context.Context, submissionID string) (*models.Submission, error) {
	var row models.Submission
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("", fmt.Sprintf("submission %s not found", submissionID))
	}
	if err != nil {
		return nil, fmt.Errorf("load submission %s: %w", submissionID, err)
	}
	return &row, nil
}

// Query returns matching submissions, newest first, capped at MaxSubmissionResults.
func (s *SubmissionStore) Query(ctx context.Context, f SubmissionFilter) ([]models.Submission, error) {
	q := s.db.WithContext(ctx).Model(&models.Submission{})
	if !f.DateFrom.IsZero() {
		q = q.Where("submitted_at >= ?", f.DateFrom.UTC())
	}
	if !f.DateTo.IsZero() {
		q = q.Where("submitted_at <= ?", f.DateTo.UTC())
	}
	if id := strings.TrimSpace(f.SubmissionID); id != "" {
		q = q.Where("submission_id = ?", id)
	}
	if folder := strings.TrimSpace(f.FolderID); folder != "" {
		q = q.Where("folder_id = ?", folder)
	}

	var rows []models.Submission
	if err := q.Order("submitted_at DESC").Order("id DESC").Limit(MaxSubmissionResults).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	return rows, nil
}

// newSubmissionID returns sub_<unix ms>_<9 base36 chars>.
func newSubmissionID(now time.Time) string {
	u := uuid.New()
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("sub_%d_%s", now.UnixMilli(), suffix[:9])
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
