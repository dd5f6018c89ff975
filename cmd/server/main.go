// Command server runs the host-routed portfolio backend.
//
// @title          Portfolio Backend API
// @version        1.0
// @description    Session-gated catalog API behind host based tenant routing.
// @BasePath       /api
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-portfolio-backend/internal/config"
	httpapi "github.com/tbourn/go-portfolio-backend/internal/http"
	"github.com/tbourn/go-portfolio-backend/internal/observability"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
	"github.com/tbourn/go-portfolio-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

// sessionSweepInterval is how often expired sessions are purged.
const sessionSweepInterval = time.Hour

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)
	ver := sysutil.FirstNonEmpty(version, "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled: setup failed")
		shutdownTracing = func(context.Context) error { return nil }
	}

	dbLog := logger.Silent
	if cfg.LogLevel == "debug" {
		dbLog = logger.Info
	}
	store := repo.NewStore(cfg.DB, repo.Options{
		Tracing:  cfg.OTEL.Enabled,
		Migrate:  true,
		LogLevel: dbLog,
	})
	defer store.Close()

	if cfg.DB.CatalogSeed != "" {
		seedCatalog(ctx, store, cfg.DB.CatalogSeed)
	}

	rates, closeRates, err := httpapi.NewRateStore(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("rate limit store")
	}
	defer func() { _ = closeRates() }()

	go sweepSessions(ctx, store, sessionSweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.New(cfg, store, rates),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("version", ver).
			Bool("dev_mode", cfg.Routing.DevMode).
			Strs("subdomains", cfg.Routing.Subdomains).
			Str("rate_backend", cfg.RateLimit.Backend).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("server stopped")
}

func seedCatalog(ctx context.Context, store *repo.Store, path string) {
	err := observability.Run(ctx, "catalog.seed", func(ctx context.Context) error {
		db, err := store.DB(ctx)
		if err != nil {
			return err
		}
		n, err := repo.SeedCatalogFile(ctx, db, path)
		if err != nil {
			return err
		}
		log.Info().Int("entries", n).Str("path", path).Msg("catalog seeded")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("catalog seed failed")
	}
}

// sweepSessions deletes expired sessions every interval until ctx ends.
func sweepSessions(ctx context.Context, store *repo.Store, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			_ = observability.Run(ctx, "sessions.sweep", func(ctx context.Context) error {
				db, err := store.DB(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("session sweep: database unavailable")
					return err
				}
				n, err := repo.DeleteExpiredSessions(ctx, db, now.UTC())
				if err != nil {
					log.Warn().Err(err).Msg("session sweep failed")
					return err
				}
				if n > 0 {
					log.Info().Int64("deleted", n).Msg("expired sessions removed")
				}
				return nil
			})
		}
	}
}
