// Package app wires the booking engine to Postgres, Redis and the outbound
// notifiers. The API server and the worker share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/gcal"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/settings"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

const (
	lockWait    = 2 * time.Second
	settingsTTL = 30 * time.Second
)

type App struct {
	Config     config.Config
	Logger     *logging.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Registry   *prometheus.Registry
	Metrics    *metrics.BookingMetrics
	Settings   *settings.Service
	Repository *appointment.PgRepository
	Service    *appointment.Service
	Dispatcher *notify.Dispatcher
	// Calendar is nil when Google OAuth credentials are missing.
	Calendar *gcal.Notifier
}

// New connects to Postgres and Redis and builds the engine with its
// notification pipeline. The dispatcher is started with ctx.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	logger.Info("connected to postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	logger.Info("connected to redis", "addr", cfg.RedisAddr)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewBookingMetrics(a.Registry)

	a.Settings = settings.NewService(settings.NewPgStore(pool), settingsTTL, logger.With("component", "settings"))
	if err := a.Settings.Refresh(ctx); err != nil {
		logger.Warn("initial settings load failed, using defaults", "error", err)
	}

	holidays, err := appointment.NewPublicHolidays(cfg.HolidayCountry)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Repository = appointment.NewPgRepository(pool)
	a.Dispatcher = notify.NewDispatcher(a.notifiers(), notify.DispatcherOptions{}, a.Metrics, logger.With("component", "dispatcher"))
	a.Dispatcher.Start(ctx)

	a.Service = appointment.NewService(
		a.Repository,
		redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, lockWait),
		holidays,
		cfg,
		appointment.WithPublisher(a.Dispatcher),
		appointment.WithMetrics(a.Metrics),
		appointment.WithLogger(logger.With("component", "appointment")),
	)
	return a, nil
}

func (a *App) notifiers() []notify.Notifier {
	cfg := a.Config
	texts := notify.Texts{BaseURL: cfg.PublicBaseURL, Location: cfg.Location}

	smsClient := notify.NewSMSAPIClient(cfg.SMS.APIURL, &http.Client{Timeout: 10 * time.Second})
	out := []notify.Notifier{
		notify.NewSMSNotifier(smsClient, notify.NewPgSMSLog(a.Pool), a.Repository, a.Settings, texts, a.Logger.With("notifier", "sms")),
	}

	var sender notify.EmailSender
	switch {
	case cfg.Email.SendGridAPIKey != "":
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			FromEmail: cfg.Email.From,
			FromName:  cfg.Email.FromName,
		}, a.Logger)
	case cfg.Email.SMTPHost != "":
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:      cfg.Email.SMTPHost,
			Port:      cfg.Email.SMTPPort,
			Username:  cfg.Email.SMTPUsername,
			Password:  cfg.Email.SMTPPassword,
			FromEmail: cfg.Email.From,
			FromName:  cfg.Email.FromName,
		})
	}
	if sender != nil {
		out = append(out, notify.NewEmailNotifier(sender, a.Repository, a.Settings, texts, a.Logger.With("notifier", "email")))
	} else {
		a.Logger.Warn("no email transport configured, email notifications disabled")
	}

	if cfg.Google.Enabled() {
		a.Calendar = gcal.New(gcal.NewOAuthConfig(cfg.Google), a.Repository, a.Settings, cfg.Location, a.Logger.With("notifier", "google_calendar"))
		out = append(out, a.Calendar)
	}
	return out
}

// Close drains pending notifications before releasing connections.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("error closing redis", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
