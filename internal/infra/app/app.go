package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/arklim/customer-identity/internal/core/domain"
	"github.com/arklim/customer-identity/internal/core/port"
	"github.com/arklim/customer-identity/internal/infra/config"
	"github.com/arklim/customer-identity/internal/infra/database"
	kafkainfra "github.com/arklim/customer-identity/internal/infra/kafka"
	"github.com/arklim/customer-identity/internal/infra/logger"
	redisinfra "github.com/arklim/customer-identity/internal/infra/redis"
	"github.com/arklim/customer-identity/internal/infra/security"
	"github.com/arklim/customer-identity/internal/infra/telemetry"
	postgresrepo "github.com/arklim/customer-identity/internal/repository/postgres"
	redisrepo "github.com/arklim/customer-identity/internal/repository/redis"
	"github.com/arklim/customer-identity/internal/transport/http/handlers"
	"github.com/arklim/customer-identity/internal/transport/http/middleware"
	"github.com/arklim/customer-identity/internal/transport/http/routes"
	"github.com/arklim/customer-identity/internal/usecase"
)

const blacklistPruneInterval = time.Minute

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider

	producer *kafkainfra.Producer

	// Set when revocations are replicated into a process-local blacklist.
	memoryBlacklist    *security.MemoryBlacklist
	revocationGroup    sarama.ConsumerGroup
	revocationConsumer *kafkainfra.TokenRevocationConsumer
	revocationTopic    string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	keyProvider, err := security.NewKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	if cfg.JWT.KeyDirectory == "" {
		log.Warn("jwt key directory not configured, signing with an ephemeral key")
	}
	jwtManager := security.NewJWTManager(keyProvider, cfg.JWT.Issuer, cfg.JWT.Audience)

	encoder, err := security.NewArgon2Encoder(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	rdb := redisClient.Client()
	cursors := redisrepo.NewRevocationCursorRepository(rdb, cfg.Redis.RevocationPrefix)
	activationCodes := redisrepo.NewActivationCodeRepository(rdb, cfg.Redis.ActivationCodePrefix)
	rateLimitStore := redisrepo.NewRateLimitRepository(rdb, redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
	})

	events := a.initPublisher()

	blacklist, err := a.initBlacklist(rdb)
	if err != nil {
		return err
	}

	authMetrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	accountService := usecase.NewAccountService(repos.Accounts, repos.IDs, encoder, events, authMetrics, log)
	tokenService := usecase.NewTokenService(cfg, jwtManager, blacklist, cursors, events, authMetrics, log)
	authService := usecase.NewAuthService(accountService, tokenService, activationCodes, repos.IDs, events, log)

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		KeySet:      jwtManager,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		Tracing: &middleware.TracingOptions{
			TracerProvider: tracer.Provider(),
			Propagators:    propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		},
		Readiness: map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    redisClient,
		},
	})

	return nil
}

func (a *Application) initPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

// initBlacklist picks the blacklist backend. The memory backend follows the
// revocation topic when Kafka is available so peers see each other's logouts.
func (a *Application) initBlacklist(rdb *goredis.Client) (port.TokenBlacklist, error) {
	cfg, log := a.cfg, a.logger
	if cfg.Blacklist.Backend != config.BlacklistBackendMemory {
		return redisrepo.NewBlacklistRepository(rdb, cfg.Redis.BlacklistPrefix), nil
	}

	blacklist := security.NewMemoryBlacklist(security.BlacklistOptions{MaxEntries: cfg.Blacklist.MaxEntries})
	a.memoryBlacklist = blacklist

	if a.producer == nil {
		log.Warn("memory blacklist without kafka, revocations stay local to this instance")
		return blacklist, nil
	}

	// Every instance needs every revocation, so each joins its own group.
	groupID := fmt.Sprintf("%s-blacklist-%s", cfg.Kafka.ConsumerGroup, uuid.NewString())
	group, err := kafkainfra.NewConsumerGroup(cfg.Kafka, groupID)
	if err != nil {
		return nil, fmt.Errorf("init revocation consumer: %w", err)
	}
	a.revocationGroup = group
	a.revocationConsumer = kafkainfra.NewTokenRevocationConsumer(blacklist, log)
	a.revocationTopic = a.producer.TopicName(domain.EventTokenRevoked)
	return blacklist, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if a.revocationConsumer != nil {
		go func() {
			if err := a.revocationConsumer.Run(runCtx, a.revocationGroup, a.revocationTopic); err != nil {
				a.logger.Error("token revocation consumer stopped", zap.Error(err))
			}
		}()
	}
	if a.memoryBlacklist != nil {
		go a.pruneBlacklist(runCtx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
		close(serverErrCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serverErrCh:
		if ok {
			return err
		}
	}

	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.logger.Info("shutting down identity API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (a *Application) pruneBlacklist(ctx context.Context) {
	ticker := time.NewTicker(blacklistPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.memoryBlacklist.Prune(now.UTC()); n > 0 {
				a.logger.Debug("pruned blacklist entries", zap.Int("count", n))
			}
		}
	}
}

// close releases whatever init managed to open, in reverse order.
func (a *Application) close(ctx context.Context) {
	if a.revocationGroup != nil {
		if err := a.revocationGroup.Close(); err != nil {
			a.logger.Warn("close revocation consumer", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
