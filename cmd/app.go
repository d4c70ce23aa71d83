package cmd

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"postraft-facade/config"
	"postraft-facade/internal/cache"
	"postraft-facade/internal/client"
	"postraft-facade/internal/metrics"
	"postraft-facade/internal/navigation"
	"postraft-facade/internal/notify"
	"postraft-facade/internal/resilience"
	"postraft-facade/internal/resource"
	"postraft-facade/internal/session"
	"postraft-facade/internal/tokenstore"
)

// app is the wired client core shared by serve and the CLI commands.
type app struct {
	metrics   *metrics.Metrics
	breaker   *resilience.CircuitBreaker
	api       *client.Client
	cache     *cache.Cache
	recorder  *notify.Recorder
	sessions  *session.Manager
	resources *resource.Services

	closeStore func() error
}

type appOptions struct {
	Registerer prometheus.Registerer
	// Notifier receives mutation outcomes in addition to the recorder.
	Notifier  notify.Notifier
	Navigator navigation.Navigator
	Logger    *slog.Logger
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	if cfg == nil {
		return nil, errNoConfig
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	store, closeStore, err := tokenstore.Open(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New(opts.Registerer)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.CBFailureThreshold,
		SuccessThreshold: cfg.CBSuccessThreshold,
		OpenTimeout:      cfg.CBOpenTimeout,
		IsFailure:        client.IsBackendFailure,
		OnStateChange: func(from, to resilience.CircuitState) {
			m.SetCircuitState(to)
			log.Warn("api circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	api := client.New(client.Options{
		BaseURL:        cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		Breaker:        breaker,
		Observer:       m,
		Logger:         log,
	})

	recorder := notify.NewRecorder(cfg.NotificationBuffer)
	notifier := notify.Multi{recorder}
	if opts.Notifier != nil {
		notifier = append(notifier, opts.Notifier)
	}

	retry := resilience.DefaultRetryPolicy()
	retry.MaxRetries = cfg.CacheQueryRetries
	qc := cache.New(cache.Config{
		StaleTime: cfg.CacheStaleTime,
		GCTime:    cfg.CacheGCTime,
		MaxIdle:   cfg.CacheMaxIdle,
		Retry:     retry,
		Metrics:   m,
		Notifier:  notifier,
		Logger:    log,
	})

	sessions := session.NewManager(session.Options{
		API:          api,
		Store:        store,
		Cache:        qc,
		Navigator:    opts.Navigator,
		Logger:       log,
		OnTransition: m.SessionTransition,
	})
	api.SetTokenSource(sessions)
	api.OnUnauthorized(sessions.HandleUnauthorized)

	return &app{
		metrics:    m,
		breaker:    breaker,
		api:        api,
		cache:      qc,
		recorder:   recorder,
		sessions:   sessions,
		resources:  resource.New(qc, api),
		closeStore: closeStore,
	}, nil
}

// requireSession hydrates the session and fails when nobody is signed in.
func (a *app) requireSession(ctx context.Context) error {
	if snap := a.sessions.Hydrate(ctx); !snap.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	return nil
}

func (a *app) Close() {
	a.cache.Close()
	if err := a.closeStore(); err != nil {
		slog.Warn("failed to close token store", "error", err)
	}
}

// cliApp wires the core for a one-shot command: toasts go to the terminal.
func cliApp() (*app, error) {
	return newApp(cfg, appOptions{Notifier: notify.Console{Printer: printer}})
}
