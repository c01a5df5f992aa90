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

	"medshop/internal/activity"
	"medshop/internal/ai"
	"medshop/internal/auth"
	"medshop/internal/billing"
	"medshop/internal/config"
	"medshop/internal/database"
	"medshop/internal/handlers"
	"medshop/internal/inventory"
	"medshop/internal/jobs"
	"medshop/internal/logger"
	"medshop/internal/mailer"
	"medshop/internal/metrics"
	"medshop/internal/reports"
	"medshop/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "medshop:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Server.Env, cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool, err := database.Connect(ctx, cfg.Database, log, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Shutdown(); err != nil {
			log.Warn("Close database failed", zap.Error(err))
		}
	}()

	seed := database.AdminSeed{
		Username: cfg.Auth.AdminUsername,
		Email:    cfg.Auth.AdminEmail,
		Password: cfg.Auth.AdminPassword,
	}
	if err := database.InitSchema(ctx, pool, seed, log); err != nil {
		return err
	}

	var mail mailer.Mailer
	if cfg.SMTP.Enabled() {
		smtp, err := mailer.NewSMTPMailer(cfg.SMTP, log)
		if err != nil {
			return err
		}
		defer smtp.Close()
		mail = smtp
	} else {
		log.Warn("SMTP not configured, password reset emails will only be logged")
		mail = mailer.NewLogMailer(log)
	}

	act := activity.NewLogger(pool, log)
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.ResetTokenTTL)
	inv := inventory.NewService(pool, act, log)
	rep := reports.NewService(pool, cfg.Jobs.ExpiringDays)

	h := &handlers.Handler{
		Auth:      auth.NewService(pool, issuer, act, mail, log, auth.Options{BaseURL: cfg.Server.BaseURL}),
		Inventory: inv,
		Billing:   billing.NewService(pool, act, m, log),
		Reports:   rep,
		Activity:  act,
		Assistant: ai.NewAssistant(cfg.AI, inv, rep, log),
		Pool:      pool,
		Metrics:   m,
	}
	if !h.Assistant.Enabled() {
		log.Info("GEMINI_API_KEY not set, assistant disabled")
	}

	scheduler, err := jobs.New(cfg.Jobs, rep, act, m, log)
	if err != nil {
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.New(server.Deps{Config: cfg, Handler: h, Logger: log, Gatherer: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("base_url", cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	log.Info("Server stopped")
	return nil
}
