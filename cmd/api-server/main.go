package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/app"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/payments"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "api-server")
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	if cfg.DoctorJWTSecret == "" {
		logger.Error("DOCTOR_JWT_SECRET is required")
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var gateway payments.Gateway
	if cfg.P24.Enabled() {
		gateway = payments.NewP24Client(cfg.P24, &http.Client{Timeout: 15 * time.Second})
	} else {
		logger.Warn("przelewy24 is not configured, online payments disabled")
	}

	var calendar api.CalendarSync
	if a.Calendar != nil {
		calendar = a.Calendar
	}

	router := api.NewRouter(api.RouterConfig{
		Service:  a.Service,
		Payments: payments.NewService(a.Service, gateway, cfg.Email.From, cfg.Location, logger.With("component", "payments")),
		Calendar: calendar,
		Settings: a.Settings,
		Auth:     api.NewDoctorAuth(cfg.DoctorJWTSecret, cfg.DoctorID),
		Health: api.NewHealthHandler(a.Pool, api.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}), cfg.Env, version),
		Metrics:  promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		DoctorID: cfg.DoctorID,
		Location: cfg.Location,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "clinic-api"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("api-server stopped")
}
