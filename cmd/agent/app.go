package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/general/config"
	"driver-dispatch/internal/general/identity"
	"driver-dispatch/internal/general/jwt"
	"driver-dispatch/internal/general/location"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/general/metrics"
	"driver-dispatch/internal/general/postgres"
	"driver-dispatch/internal/general/rabbitmq"
	"driver-dispatch/internal/general/websocket"
	"driver-dispatch/internal/ports"
	"driver-dispatch/internal/software/session/handler"
	"driver-dispatch/internal/software/session/service"
)

// Run holds the driver's dispatch session until ctx is cancelled.
func Run(ctx context.Context, cfgPath string) error {
	// load configuration
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}

	// set up a new logger with a static request ID for startup logs
	logger := logger.NewWithLevel("driver-agent", cfg.Log.Level)
	defer logger.Sync()
	ctx = logger.WithRequestID(ctx, "startup-001")

	m := metrics.New()
	transitions := []ports.TransitionObserver{m}
	samples := []ports.SampleObserver{m}
	sessions := []ports.SessionObserver{m}

	// journal and telemetry run behind one ordered queue so intake never waits on I/O
	sinks := service.NewSinkQueue(cfg.Session.SinkBuffer, logger)

	// optional ride journal
	if cfg.Journal.Enabled {
		if err := postgres.Migrate(ctx, cfg, logger); err != nil {
			logger.Error(ctx, "db_migration_failed", "Failed to migrate the ride journal", err, nil)
			return err
		}
		pool, err := postgres.NewPool(ctx, cfg, logger)
		if err != nil {
			logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
			return err
		}
		defer pool.Close()

		journal := service.NewJournal(postgres.NewUnitOfWork(pool), postgres.NewRideEventRepo(), postgres.NewLocationHistoryRepo(), logger)
		transitions = append(transitions, sinks.Transitions(journal))
		samples = append(samples, sinks.Samples(journal))
	}

	// optional fleet telemetry
	if cfg.Telemetry.Enabled {
		rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
		if err != nil {
			logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
			return err
		}
		defer rmq.Close()

		telemetry := rabbitmq.NewTelemetry(rmq, logger)
		transitions = append(transitions, sinks.Transitions(telemetry))
		samples = append(samples, sinks.Samples(telemetry))
		sessions = append(sessions, sinks.Sessions(telemetry))
	}
	// drained after the gate's final teardown and before the pool and broker close
	defer sinks.Close()

	// driver API
	dir, err := identity.NewClient(cfg.Identity.BaseURL, cfg.Dispatch.Token, cfg.Identity.Timeout)
	if err != nil {
		logger.Error(ctx, "identity_client_failed", "Cannot use the configured driver token", err, nil)
		return err
	}
	var pending ports.DriverDirectory
	if cfg.Session.SeedPending {
		pending = dir
	}

	providers := location.NewProviders(cfg, logger)
	defer func() { _ = providers.Close() }()

	// one channel, sampler and tracker per session
	factory := func(ctx context.Context, id driver.Identity, watch ports.TransitionObserver) (*service.Session, error) {
		provider, err := providers.For(id.DriverID)
		if err != nil {
			return nil, err
		}

		opts := websocket.OptionsFromConfig(cfg)
		opts.OnReconnect = m.Reconnected
		ch := websocket.NewChannel(ctx, opts, logger)

		tracker := service.NewTracker(ch, service.NewDeduplicator(), service.TrackerOptions{
			DriverID:  id.DriverID,
			MaxQueued: cfg.Session.MaxQueuedOffers,
			Observers: append(slices.Clone(transitions), watch),
			Hooks:     service.Hooks{OfferDropped: m.OfferDropped, NoDriversFound: m.NoDrivers},
		}, logger)

		return service.NewSession(service.SessionDeps{
			Identity:        id,
			Channel:         ch,
			Location:        location.NewSampler(provider, cfg.Location.MinInterval, logger),
			Tracker:         tracker,
			Pending:         pending,
			Samples:         samples,
			Sessions:        sessions,
			OnLocationError: m.LocationError,
		}, logger), nil
	}

	gate := service.NewGate(factory, service.GateOptions{FinishActiveRide: cfg.Session.FinishActiveRide}, logger)
	defer gate.Close(context.WithoutCancel(ctx))

	// identity changes drive the gate
	watcher := identity.NewWatcher(dir, gate, cfg.Identity.PollInterval, logger)
	go watcher.Run(ctx)

	// local console API
	var auth *jwt.Manager
	if cfg.API.Secret != "" {
		auth = jwt.NewManager(cfg.API.Secret, time.Hour)
	}
	httpHandler := handler.NewSessionHTTPHandler(gate, dir, logger, auth, m)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Driver agent started, console API on port %d", cfg.API.Port),
		map[string]any{
			"port":              cfg.API.Port,
			"dispatch_url":      cfg.Dispatch.URL,
			"location_provider": cfg.Location.Provider,
			"journal":           cfg.Journal.Enabled,
			"telemetry":         cfg.Telemetry.Enabled,
		},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		logger.Info(context.WithoutCancel(ctx), "service_stopped", "Driver agent stopped", nil)
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.API.Port})
			return err
		}
	}

	return nil
}

// Migrate applies the ride journal migrations and exits.
func Migrate(ctx context.Context, cfgPath string) error {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}
	logger := logger.NewWithLevel("driver-agent", cfg.Log.Level)
	defer logger.Sync()
	return postgres.Migrate(ctx, cfg, logger)
}
