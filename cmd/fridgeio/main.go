package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fridgeio/internal/backup"
	"fridgeio/internal/database"
	"fridgeio/internal/logging"
	"fridgeio/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.Setup(envOr("FRIDGEIO_LOG_LEVEL", "info"), envOr("FRIDGEIO_LOG_FORMAT", "text"))

	cfg := server.Config{
		Port:            envOr("FRIDGEIO_PORT", "8080"),
		DBPath:          envOr("FRIDGEIO_DB_PATH", "fridgeio.db"),
		DataDir:         envOr("FRIDGEIO_DATA_DIR", "data"),
		RecipeAppID:     os.Getenv("FRIDGEIO_RECIPE_APP_ID"),
		RecipeAppKey:    os.Getenv("FRIDGEIO_RECIPE_APP_KEY"),
		PostmarkToken:   os.Getenv("FRIDGEIO_POSTMARK_TOKEN"),
		PostmarkBaseURL: os.Getenv("FRIDGEIO_POSTMARK_BASE_URL"),
		FromEmail:       os.Getenv("FRIDGEIO_FROM_EMAIL"),
		VAPIDPublicKey:  os.Getenv("FRIDGEIO_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("FRIDGEIO_VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: os.Getenv("FRIDGEIO_VAPID_SUBSCRIBER"),
	}
	cfg.Backup = backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("FRIDGEIO_S3_ENDPOINT"),
			Bucket:    os.Getenv("FRIDGEIO_S3_BUCKET"),
			Region:    envOr("FRIDGEIO_S3_REGION", "auto"),
			AccessKey: os.Getenv("FRIDGEIO_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("FRIDGEIO_S3_SECRET_KEY"),
			Prefix:    os.Getenv("FRIDGEIO_S3_PREFIX"),
		},
		DBPath: cfg.DBPath,
	}
	if v := os.Getenv("FRIDGEIO_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse FRIDGEIO_BACKUP_INTERVAL: %w", err)
		}
		cfg.Backup.Interval = d
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.PushScheduler().Run(ctx)

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
	}

	// Periodic housekeeping for expired sessions and stale rate limit
	// windows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := srv.SessionStore().PurgeExpired(); err != nil {
					logger.Error("purge sessions", "error", err)
				} else if n > 0 {
					logger.Debug("purged expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	cancel()
	srv.BackupManager().Stop()
	srv.Registry().CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
