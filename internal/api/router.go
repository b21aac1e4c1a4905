// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/api/handlers"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/metrics"
)

// AdminGuard wraps routes that need an authenticated admin.
type AdminGuard interface {
	Require(next http.Handler) http.Handler
}

// OAuthFlow serves provider sign-in.
type OAuthFlow interface {
	HandleLogin(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	API     *handlers.API
	Admin   AdminGuard
	OAuth   OAuthFlow
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := d.API

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", handlers.Health)
	r.Get("/api/version", handlers.Version)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	// Visitor API
	r.Get("/photos", api.Photos)
	r.Post("/selection", api.Selection)
	r.Get("/image", api.Image)
	r.Post("/picker/sessions", api.PickerSession)
	r.Get("/folders", api.PublicFolders)
	r.Get("/folders/info", api.FolderInfo)

	r.Post("/admin/login", api.Login)
	r.Post("/admin/logout", api.Logout)

	r.Group(func(r chi.Router) {
		r.Use(d.Admin.Require)

		if d.OAuth != nil {
			r.Get("/auth/{provider}/login", d.OAuth.HandleLogin)
			r.Get("/auth/{provider}/callback", d.OAuth.HandleCallback)
		}

		r.Get("/admin/submissions", api.Submissions)
		r.Get("/admin/photos", api.AdminPhotos)
		r.Get("/admin/download", api.Download)
		r.Post("/admin/clear-tokens", api.ClearTokens)
		r.Get("/admin/picker/token", api.PickerToken)
		r.Get("/admin/tokens", api.TokenStatuses)
		r.Get("/admin/folders", api.PublicFolders)
		r.Post("/admin/folders", api.AddFolder)
		r.Delete("/admin/folders/{id}", api.DeleteFolder)
	})

	return r
}
