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

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/access"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/di"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/gateway"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/handler"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/identity"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/repository"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/service"
	"github.com/prohmpiriya/gym-platform/backend-platform/internal/vault"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/config"
	"github.com/prohmpiriya/gym-platform/pkg/database"
	"github.com/prohmpiriya/gym-platform/pkg/kafka"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/prohmpiriya/gym-platform/pkg/middleware"
	pkgredis "github.com/prohmpiriya/gym-platform/pkg/redis"
	"github.com/prohmpiriya/gym-platform/pkg/saga"
	"github.com/prohmpiriya/gym-platform/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "platform: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
		OutputPath:  "stdout",
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	}()
	metrics, err := telemetry.NewMetrics(tel.Meter())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// Infrastructure
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      5,
		RetryInterval:   2 * time.Second,
		ConnectTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	checks := map[string]handler.HealthChecker{"postgres": db}
	repos := di.PostgresRepositories(db.Pool())

	var rdb *pkgredis.Client
	var invalidator service.LimitsInvalidator
	if cfg.Redis.Enabled {
		rdb, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cached := repository.NewCachedQuotaRepository(repos.Quota, rdb, cfg.Redis.LimitsCacheTTL, log)
		repos.Quota = cached
		invalidator = cached
		checks["redis"] = rdb
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	}, log)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer producer.Close()

	auditLog := audit.NewLogger(audit.DefaultConfig(db.Pool()), log)
	defer auditLog.Close()

	idp, err := identity.New(identity.Config{
		BaseURL:    cfg.Identity.URL,
		ServiceKey: cfg.Identity.ServiceKey,
		Timeout:    cfg.Identity.Timeout,
		RetryCount: 2,
	}, log)
	if err != nil {
		return fmt.Errorf("identity client: %w", err)
	}

	var billing gateway.BillingProvider = gateway.DisabledBilling{}
	if cfg.Stripe.SecretKey != "" {
		billing = gateway.NewStripeBilling(cfg.Stripe.SecretKey)
	}

	cipher, err := vault.NewCipher(cfg.Vault.EncryptionKey)
	if err != nil {
		// credential saves fail with an internal error until a key is configured
		log.Warn("credential vault disabled", zap.Error(err))
	}

	verifier := gateway.NewOrderVerifier(gateway.VerifierConfig{
		BaseURL: cfg.Vault.GatewayURL,
		Timeout: cfg.Vault.GatewayTimeout,
	})
	orchestrator := saga.NewOrchestrator(&saga.OrchestratorConfig{
		Store:  saga.NewPostgresStore(db.Pool()),
		Logger: log,
	})

	container, err := di.NewContainer(&di.ContainerConfig{
		Repos:        repos,
		Invalidator:  invalidator,
		Identity:     idp,
		Verifier:     verifier,
		Billing:      billing,
		Cipher:       cipher,
		Publisher:    producer,
		Audit:        auditLog,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Logger:       log,
		AuthzMode:    access.Mode(cfg.Authz.Mode),
		Provisioning: service.ProvisioningConfig{
			BillingFailurePolicy: cfg.Provisioning.BillingFailurePolicy,
			StepTimeout:          cfg.Provisioning.StepTimeout,
			EventsTopic:          cfg.Kafka.TenantEventsTopic,
		},
		HealthChecks: checks,
	})
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	router := newRouter(cfg, container, idp, rdb, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("platform service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newRouter(cfg *config.Config, c *di.Container, lookup middleware.TokenLookup, rdb *pkgredis.Client, log *logger.Logger) *gin.Engine {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowedOrigins
	}
	router.Use(middleware.CORS(cors))

	router.GET("/health", c.HealthHandler.Health)

	jwtCfg := &middleware.JWTConfig{
		Secret:    cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
		SkipPaths: []string{"/health"},
	}
	auth := middleware.NewTokenAuthenticator(jwtCfg, lookup, log)

	functions := router.Group("/functions/v1")
	functions.Use(middleware.BearerAuth(auth, jwtCfg))
	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RPS
		rl.BurstSize = cfg.RateLimit.Burst
		rl.RedisClient = rdb
		functions.Use(middleware.RateLimiter(middleware.NewLimiter(rl), rl, log))
	}
	functions.Use(handler.Principal(c.Roles))
	c.FunctionsHandler.Register(functions)

	return router
}
