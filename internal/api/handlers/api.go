// Package handlers implements the visitor, admin and operational HTTP endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/auth/token"
	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/db/models"
	"github.com/pysugar/photopick/internal/export"
	"github.com/pysugar/photopick/internal/upstream"
)

type SubmissionStore interface {
	Create(ctx context.Context, in db.NewSubmission) (string, error)
	Get(ctx context.Context, submissionID string) (*models.Submission, error)
	Query(ctx context.Context, f db.SubmissionFilter) ([]models.Submission, error)
}

type FolderStore interface {
	Upsert(ctx context.Context, folder *models.SourceFolder) error
	List(ctx context.Context) ([]models.SourceFolder, error)
	Delete(ctx context.Context, folderID string) error
}

// TokenAdmin is the slice of the token manager the admin endpoints use.
type TokenAdmin interface {
	GetAccessToken(ctx context.Context, provider string) (string, error)
	Clear(ctx context.Context) (int64, error)
	Statuses(ctx context.Context) ([]token.Status, error)
}

// SessionAuth starts and ends admin sessions.
type SessionAuth interface {
	Login(w http.ResponseWriter, r *http.Request, username, password string) (bool, error)
	Logout(w http.ResponseWriter, r *http.Request) error
}

type Config struct {
	DefaultProvider string
	DeveloperKey    string
	// FolderNameTimeout bounds the best-effort folder lookup on submission.
	FolderNameTimeout time.Duration
}

// API holds the dependencies shared by every handler.
type API struct {
	cfg         Config
	providers   *upstream.Registry
	submissions SubmissionStore
	folders     FolderStore
	tokens      TokenAdmin
	sessions    SessionAuth
	exporter    *export.Service
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func New(cfg Config, providers *upstream.Registry, submissions SubmissionStore, folders FolderStore,
	tokens TokenAdmin, sessions SessionAuth, exporter *export.Service, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FolderNameTimeout <= 0 {
		cfg.FolderNameTimeout = 5 * time.Second
	}
	return &API{
		cfg:         cfg,
		providers:   providers,
		submissions: submissions,
		folders:     folders,
		tokens:      tokens,
		sessions:    sessions,
		exporter:    exporter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
		now:         time.Now,
	}
}

// provider resolves the ?provider= value, falling back to the configured default.
func (a *API) provider(id string) (upstream.Provider, error) {
	if id == "" {
		id = a.cfg.DefaultProvider
	}
	return a.providers.Get(id)
}
