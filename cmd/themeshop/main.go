package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	stripego "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/themeshop/internal/backup"
	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/checkout"
	"github.com/dukerupert/themeshop/internal/config"
	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/email"
	"github.com/dukerupert/themeshop/internal/logging"
	"github.com/dukerupert/themeshop/internal/printful"
	"github.com/dukerupert/themeshop/internal/server"
	"github.com/dukerupert/themeshop/internal/store"
	"github.com/dukerupert/themeshop/internal/stripe"
)

const stripeTimeout = 20 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var payments checkout.Payments
	if cfg.Stripe.SecretKey != "" {
		backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
			HTTPClient: &http.Client{Timeout: stripeTimeout},
		})
		payments = stripe.NewClient(stripe.Config{
			SecretKey:      cfg.Stripe.SecretKey,
			WebhookSecret:  cfg.Stripe.WebhookSecret,
			PremiumPriceID: cfg.Stripe.PremiumPriceID,
			BaseURL:        cfg.BaseURL,
		}, stripe.WithBackend(backend))
	} else {
		logger.Warn("stripe not configured, checkout is disabled")
	}

	partner := printful.NewClient(cfg.Printful.APIKey, cfg.Printful.StoreID)
	if !partner.Configured() {
		logger.Warn("printful not configured, paid orders will wait for manual fulfillment")
	}
	mailer := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail, cfg.BaseURL)
	if !mailer.Configured() {
		logger.Warn("postmark not configured, emails will be skipped")
	}

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		},
		Passphrase:    cfg.Backup.Passphrase,
		Interval:      cfg.Backup.Interval,
		RetentionDays: cfg.Backup.RetentionDays,
	}, db, store.NewBackupStore(db), logger)

	srv := server.New(server.Deps{
		DB:            db,
		BaseURL:       cfg.BaseURL,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Catalog:       catalog.Default(),
		Payments:      payments,
		Partner:       partner,
		Mailer:        mailer,
		Backup:        backups,
		Logger:        logger,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	srv.StartMaintenance(ctx, time.Hour)
	backups.Start(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("themeshop listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stop()
	backups.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancelDrain()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("background tasks did not finish", "error", err)
	}
}
