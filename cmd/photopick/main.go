package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/api"
	"github.com/pysugar/photopick/internal/api/handlers"
	"github.com/pysugar/photopick/internal/auth/admin"
	"github.com/pysugar/photopick/internal/auth/google"
	"github.com/pysugar/photopick/internal/auth/token"
	"github.com/pysugar/photopick/internal/config"
	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/db/models"
	"github.com/pysugar/photopick/internal/export"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/metrics"
	"github.com/pysugar/photopick/internal/providers/catalog"
	"github.com/pysugar/photopick/internal/upstream"
	"github.com/pysugar/photopick/internal/upstream/filestack"
	"github.com/pysugar/photopick/internal/upstream/googledrive"
	"github.com/pysugar/photopick/internal/upstream/gumlet"
	"github.com/pysugar/photopick/internal/upstream/photospicker"
	"github.com/pysugar/photopick/internal/version"
)

const oauthClientTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Env == config.EnvDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}

	mt := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := catalog.Init(ctx); err != nil {
		logger.Warn("provider catalog loaded with errors, using defaults where missing", zap.Error(err))
	}

	creds := google.Credentials{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		AuthURL:      cfg.Google.AuthURL,
		TokenURL:     cfg.Google.TokenURL,
	}

	refreshers := make(map[string]token.Refresher, len(models.KnownTokenProviders))
	for _, provider := range models.KnownTokenProviders {
		oc, err := google.GetOAuthConfig(creds, provider, "")
		if err != nil {
			logger.Fatal("oauth config", zap.String("provider", provider), zap.Error(err))
		}
		refreshers[provider] = token.OAuthRefresher{
			Config:     oc,
			HTTPClient: mt.InstrumentClient("google-oauth", &http.Client{Timeout: oauthClientTimeout}),
		}
	}
	tokens := token.NewManager(db.NewTokenStore(database), refreshers,
		token.WithLogger(logger), token.WithMetrics(mt))

	registry := upstream.NewRegistry(buildProviders(cfg, tokens, mt, logger)...)
	logger.Info("photo sources registered", zap.Strings("providers", registry.IDs()))
	if _, err := registry.Get(cfg.DefaultProvider); err != nil {
		logger.Warn("default provider is not available", zap.String("provider", cfg.DefaultProvider))
	}

	adminAuth := admin.New(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.SessionSecret, cfg.Admin.SessionMaxAge)
	flow := google.NewFlow(creds, adminAuth.Store(), tokens, cfg.Server.PublicBaseURL, cfg.Admin.HomeURL, logger).
		WithHTTPClient(mt.InstrumentClient("google-oauth", &http.Client{Timeout: oauthClientTimeout}))

	h := handlers.New(
		handlers.Config{DefaultProvider: cfg.DefaultProvider, DeveloperKey: cfg.Google.DeveloperKey},
		registry,
		db.NewSubmissionStore(database),
		db.NewFolderStore(database),
		tokens,
		adminAuth,
		export.New(logger, mt, cfg.Export.ItemTimeout),
		logger,
	)

	srv := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.Deps{
			API:     h,
			Admin:   adminAuth,
			OAuth:   flow,
			Metrics: mt,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("photopick starting",
		zap.String("addr", srv.Addr),
		zap.String("version", version.Version),
		zap.String("commit", version.Commit))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("photopick stopped")
}

// buildProviders creates an adapter for every runtime-enabled catalog entry.
func buildProviders(cfg *config.Config, tokens upstream.TokenSource, mt *metrics.Metrics, logger *zap.Logger) []upstream.Provider {
	var out []upstream.Provider
	for _, info := range catalog.GetProviders() {
		if !info.RuntimeEnabled {
			logger.Info("photo source disabled", zap.String("provider", info.ID), zap.Bool("enabled", info.Enabled))
			continue
		}
		if !cfg.ProviderAllowed(info.ID) {
			logger.Info("photo source excluded by ENABLED_PROVIDERS", zap.String("provider", info.ID))
			continue
		}
		_, apiKey, timeout, _ := catalog.GetRuntimeProvider(info.ID)
		client := mt.InstrumentClient(info.ID, &http.Client{Timeout: timeout})

		switch info.ID {
		case googledrive.ProviderID:
			p := googledrive.NewProviderWithClient(tokens, info.BaseURL, timeout, client)
			p.SetThumbnailTimeout(cfg.Export.ThumbnailTimeout)
			out = append(out, p)
		case photospicker.ProviderID:
			out = append(out, photospicker.NewProviderWithClient(tokens, info.BaseURL,
				info.Endpoint(catalog.EndpointLibrary), timeout, client))
		case gumlet.ProviderID:
			out = append(out, gumlet.NewProviderWithClient(apiKey, info.BaseURL, timeout, client))
		case filestack.ProviderID:
			out = append(out, filestack.NewProviderWithClient(apiKey, info.BaseURL,
				info.Endpoint(catalog.EndpointCDN), timeout, client))
		}
	}
	return out
}
