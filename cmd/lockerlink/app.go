package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Jcapehart2/lockerlink/internal/api"
	"github.com/Jcapehart2/lockerlink/internal/auth"
	"github.com/Jcapehart2/lockerlink/internal/callback"
	"github.com/Jcapehart2/lockerlink/internal/config"
	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/notify"
	"github.com/Jcapehart2/lockerlink/internal/options"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/queue"
	"github.com/Jcapehart2/lockerlink/internal/registrar"
	"github.com/Jcapehart2/lockerlink/internal/settings"
	"github.com/Jcapehart2/lockerlink/internal/storage"
)

// app holds the wired components shared by the server and the CLI tools.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	options   *options.Store
	orders    *orders.Store
	subs      *eventbus.Store
	bus       *eventbus.Bus
	jobs      *queue.Queue
	registrar *registrar.Registrar
	settings  *settings.Service
}

// newApp opens the database and wires the stores, bus and registrar.
// Callers must close a.db.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
	}

	opts := options.NewStore(db)
	subs := eventbus.NewStore(db)
	bus := eventbus.NewBus(subs, logger.With("component", "eventbus"))
	bus.SetMaxAttempts(cfg.Bus.MaxAttempts)

	orderStore := orders.NewStore(db, logger.With("component", "orders"))
	orderStore.SetPublisher(bus)

	reg := registrar.New(subs, opts, opts, orderStore, logger.With("component", "registrar"))
	reg.Install(bus)

	return &app{
		cfg:       cfg,
		db:        db,
		options:   opts,
		orders:    orderStore,
		subs:      subs,
		bus:       bus,
		jobs:      queue.New(db),
		registrar: reg,
		settings:  settings.New(opts, reg, logger.With("component", "settings")),
	}, nil
}

// seed stores the configured integration block on first start.
func (a *app) seed(ctx context.Context) (bool, error) {
	in := a.cfg.Integration
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	if in.WebhookURL == "" && in.APIKey == "" {
		return false, nil
	}
	return a.settings.Seed(ctx, lockerlink.Credentials{
		WebhookURL: in.WebhookURL,
		APIKey:     in.APIKey,
		Enabled:    enabled,
	})
}

func (a *app) mailer(logger *slog.Logger) notify.Mailer {
	m := a.cfg.Mail
	if m.Driver == "smtp" {
		return notify.NewSMTPMailer(m.Host, m.Port, m.Username, m.Password, m.From)
	}
	return notify.NewLogMailer(logger)
}

func (a *app) deliverer(logger *slog.Logger) *eventbus.Deliverer {
	return eventbus.NewDeliverer(a.subs, a.orders.Payload, eventbus.DelivererConfig{
		PollInterval: a.cfg.Bus.PollInterval,
		Timeout:      a.cfg.Bus.Timeout,
		BatchSize:    a.cfg.Bus.BatchSize,
	}, logger)
}

func (a *app) notifyWorker(logger *slog.Logger) *notify.Worker {
	return notify.NewWorker(a.jobs, a.orders, a.mailer(logger), notify.WorkerConfig{
		PollInterval: a.cfg.Notify.PollInterval,
		ViewOrderURL: a.cfg.Mail.ViewOrderURL,
	}, logger)
}

func (a *app) server(logger *slog.Logger) *api.Server {
	cb := callback.New(callback.Config{
		MaxBodySize: a.cfg.Callback.MaxBodySize,
		RateLimit:   a.cfg.Callback.RateLimit.RPS,
		Burst:       a.cfg.Callback.RateLimit.Burst,
	}, a.orders, a.options, notify.NewOutbox(a.jobs, a.cfg.Notify.MaxAttempts), logger.With("component", "callback"))

	tokens := make([]auth.TokenConfig, 0, len(a.cfg.API.Auth.Tokens))
	for _, t := range a.cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}

	return api.New(api.Config{
		Listen:         a.cfg.API.Listen,
		AdminEnabled:   a.cfg.API.Enabled,
		Tokens:         tokens,
		CallbackPrefix: a.cfg.Callback.PathPrefix,
		MetricsPath:    metricsPath,
	}, api.Deps{
		Callback:   cb.Routes(),
		Orders:     a.orders,
		Settings:   a.settings,
		Webhooks:   a.registrar,
		Deliveries: a.subs,
		DB:         a.db,
	}, logger.With("component", "api"))
}

func pidLockPath(cfg *config.Config) string {
	dbDir := filepath.Dir(cfg.State.Path)
	dbBase := filepath.Base(cfg.State.Path)
	ext := filepath.Ext(dbBase)
	return filepath.Join(dbDir, dbBase[:len(dbBase)-len(ext)]+".pid")
}
