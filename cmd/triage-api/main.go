// Package main provides the triage API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/api/handlers"
	"github.com/clinicaflow/go-triage/internal/api/middleware"
	"github.com/clinicaflow/go-triage/internal/config"
	"github.com/clinicaflow/go-triage/internal/engine"
	"github.com/clinicaflow/go-triage/internal/observability/metrics"
	"github.com/clinicaflow/go-triage/internal/observability/tracing"
	"github.com/clinicaflow/go-triage/internal/pipeline"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	if path := os.Getenv("TRIAGE_CONFIG_FILE"); path != "" {
		var err error
		cfg, err = config.LoadFile(path, cfg)
		if err != nil {
			logger.Fatal("failed to load config file", zap.Error(err))
		}
	}

	tp, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "triage-api",
		ServiceVersion: pipeline.Version,
		Environment:    os.Getenv("TRIAGE_ENVIRONMENT"),
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New()

	eng, err := engine.New(cfg, m, logger)
	if err != nil {
		logger.Fatal("failed to assemble engine", zap.Error(err))
	}

	triageHandler := handlers.NewTriageHandler(eng.Pipeline, eng.Snapshot, eng.Doctor, m, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSAllowOrigin))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("triage-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))
		r.Use(middleware.MaxBytes(cfg.Request.MaxBytes))
		r.Mount("/", triageHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.Request.Deadline,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting triage API",
		zap.String("port", cfg.Port),
		zap.String("policy_pack_sha256", eng.Snapshot.SHA256()),
		zap.String("safety_rules_version", eng.Rules.Version))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"triage-api","version":%q}`, pipeline.Version)
}
