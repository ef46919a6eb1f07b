package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/database"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/identity"
	kafkainfra "github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/kafka"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/logger"
	redisinfra "github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/redis"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/telemetry"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository/memory"
	postgresrepo "github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository/postgres"
	redisrepo "github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository/redis"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/transport/http/middleware"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/transport/http/routes"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	consumer *kafkainfra.ProfileConsumer
	tracer   *telemetry.TracerProvider
	sessions *usecase.SessionManager
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.wire(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	var sessionMetrics *telemetry.SessionMetrics
	var httpMetrics *middleware.HTTPMetrics
	if cfg.Telemetry.MetricsEnabled {
		var err error
		sessionMetrics, err = telemetry.NewSessionMetrics(telemetry.SessionMetricsOptions{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			return fmt.Errorf("init session metrics: %w", err)
		}
		httpMetrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			return fmt.Errorf("init http metrics: %w", err)
		}
	}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
	}

	store, storeChecker, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool
	pg := postgresrepo.NewStoreFromPool(pool)
	profiles := pg.Profiles()

	events, subscriber := a.openKafka()

	provider := identity.NewProvider(cfg.Identity, store, identity.ProviderOptions{}).WithLogger(log)

	health := usecase.NewSessionHealthStore(store, usecase.SessionHealthOptions{
		FailureThreshold: cfg.Session.FailureThreshold,
		RecoveryCooldown: cfg.Session.RecoveryCooldown,
		IdleThreshold:    cfg.Session.IdleThreshold,
	}).WithLogger(log)

	cache := usecase.NewRequestCache(usecase.RequestCacheOptions{
		ShortTTL:    cfg.Cache.ShortTTL,
		DefaultTTL:  cfg.Cache.DefaultTTL,
		LongTTL:     cfg.Cache.LongTTL,
		BatchWindow: cfg.Session.BatchWindow,
	}).WithLogger(log)

	tokens := usecase.NewTokenLifecycleManager(provider, usecase.TokenLifecycleOptions{
		RefreshThreshold:           cfg.Session.RefreshThreshold,
		VisibilityRefreshThreshold: cfg.Session.VisibilityRefreshThreshold,
		VisibilityDebounce:         cfg.Session.VisibilityDebounce,
	}).WithLogger(log)

	users := usecase.NewUserRecordCache(profiles, provider, health, usecase.UserRecordCacheOptions{
		TTL:             cfg.Session.UserRecordTTL,
		CooperativeWait: cfg.Session.CooperativeWait,
		Policy:          domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Revocation.DegradationPolicy)),
	}).WithLogger(log)

	sessions := usecase.NewSessionManager(usecase.SessionManagerDeps{
		Provider:    provider,
		Tokens:      tokens,
		Users:       users,
		Health:      health,
		Cache:       cache,
		Store:       store,
		TokenWriter: profiles,
		Profiles:    profiles,
		Subscriber:  subscriber,
		Events:      events,
	}, usecase.SessionManagerOptions{
		BootstrapTimeout: cfg.Session.BootstrapTimeout,
		Revocation: usecase.RevocationWatcherOptions{
			PollInterval: cfg.Session.PollInterval,
			QueueSize:    cfg.Revocation.QueueSize,
		},
		Inactivity: usecase.InactivityMonitorOptions{
			CheckInterval: cfg.Session.IdleCheckInterval,
		},
	}).WithLogger(log)

	if sessionMetrics != nil {
		cache.WithMetrics(sessionMetrics)
		tokens.WithMetrics(sessionMetrics)
		sessions.WithMetrics(sessionMetrics)
	}
	if a.tracer != nil {
		sessions.WithTracerProvider(a.tracer.Provider())
	}
	a.sessions = sessions

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Sessions: sessions,
		Profiles: usecase.NewProfileReader(profiles, cache),
		Cache:    cache,
		Metrics:  httpMetrics,
		Database: pg,
		Store:    storeChecker,
	}
	if a.tracer != nil {
		deps.TracerProvider = a.tracer.Provider()
	}
	a.engine = routes.Register(deps)

	return nil
}

func (a *Application) openStore(ctx context.Context) (port.KeyValueStore, routes.StoreChecker, error) {
	switch a.cfg.Store.Backend {
	case "memory":
		a.logger.Warn("using in-memory local state; sessions will not survive a restart")
		return memory.NewKeyValueStore(), nil, nil
	case "", "redis":
		client, err := redisinfra.NewClient(ctx, a.cfg.Redis, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		if a.cfg.Telemetry.MetricsEnabled {
			if err := client.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
				return nil, nil, fmt.Errorf("init store pool metrics: %w", err)
			}
		}
		store := redisrepo.NewKeyValueStore(client.Client(), a.cfg.Redis.Namespace)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

// openKafka never fails startup: without brokers the daemon publishes to the log and relies on
// the poll producer for revocation.
func (a *Application) openKafka() (port.EventPublisher, port.ProfileSubscriber) {
	cfg, log := a.cfg, a.logger

	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher and poll-only revocation")
		return kafkainfra.NewStubPublisher(log), nil
	}

	var events port.EventPublisher
	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		events = kafkainfra.NewStubPublisher(log)
	} else {
		a.producer = producer
		events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	group, err := kafkainfra.NewConsumerGroup(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init profile consumer, revocation falls back to polling", zap.Error(err))
		return events, nil
	}
	a.consumer = kafkainfra.NewProfileConsumer(group, kafkainfra.ProfileTopic(cfg.Kafka), log)
	return events, a.consumer
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.release()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Error("profile consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session daemon",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store_backend", a.cfg.Store.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	// The API answers with loading=true until bootstrap settles.
	go func() {
		if err := a.sessions.Bootstrap(ctx); err != nil && !errors.Is(err, usecase.ErrSuperseded) {
			a.logger.Warn("session bootstrap failed", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// release closes everything New opened, in reverse order. Safe on a partially wired application.
func (a *Application) release() {
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("close profile consumer", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
}
