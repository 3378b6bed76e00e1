package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/card-control/auth"
	"github.com/upb/card-control/config"
	"github.com/upb/card-control/handlers"
	"github.com/upb/card-control/internal/cache"
	"github.com/upb/card-control/internal/observability"
	"github.com/upb/card-control/internal/policy"
	"github.com/upb/card-control/middleware"
	"github.com/upb/card-control/repositories"
	"github.com/upb/card-control/repositories/memory"
	"github.com/upb/card-control/repositories/postgres"
	"github.com/upb/card-control/services"
	"github.com/upb/card-control/services/authorization"
	"github.com/upb/card-control/services/cards"
	"github.com/upb/card-control/services/controls"
	"github.com/upb/card-control/services/gateway"
	"go.uber.org/zap"
)

// developmentJWTSecret signs tokens when JWT_SECRET is unset outside production
const developmentJWTSecret = "card-control-development-secret"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Storage. DB and RepoFactory are nil with the memory backend.
	DB          *postgres.DB
	RepoFactory *postgres.RepositoryFactory
	MemoryStore *memory.Store
	Repos       *repositories.Repositories

	// Cache
	Cache       cache.Store
	redisClient *redis.Client

	// Control policy
	Registry *policy.Registry
	Engine   *policy.Engine

	// Services
	Gateway       *gateway.Client
	Cards         *cards.Service
	ControlView   *controls.View
	Controls      *controls.Service
	Authorization *authorization.Service

	// Auth
	TokenValidator *auth.HMACValidator
	AuthMiddleware *middleware.AuthMiddleware

	stopWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initCache(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := deps.initPolicy(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to load control definitions: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("cache", cfg.Cache.Backend))
	return deps, nil
}

// initStorage opens the configured store and builds the repositories
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		d.MemoryStore = memory.NewStore()
		d.Repos = d.MemoryStore.Repositories()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil

	case config.StorageBackendPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.DB = factory.GetDB()

		if cfg.Storage.InitSchema {
			if err := factory.InitSchema(ctx); err != nil {
				_ = factory.Close()
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}

		d.Repos = factory.NewRepositories()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
		return nil

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// initCache builds the card and grouped-control cache
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		store := cache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		workerCtx, cancel := context.WithCancel(context.Background())
		d.stopWorkers = cancel
		if cfg.Cache.CleanupInterval > 0 {
			go store.StartCleanupWorker(workerCtx, cfg.Cache.CleanupInterval)
		}
		d.Cache = store
		return nil

	case config.CacheBackendRedis:
		client := cache.NewRedisClient(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		store := cache.NewRedisStore(client, cfg.Cache.TTL)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}

		d.redisClient = client
		d.Cache = store
		d.Logger.Info("redis cache connected", zap.String("addr", cfg.Cache.Redis.Addr))
		return nil

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// initPolicy loads the control definitions and mandatory spec
func (d *Dependencies) initPolicy(cfg *config.Config) error {
	var (
		registry *policy.Registry
		err      error
	)
	if path := cfg.Controls.DefinitionsPath; path != "" {
		registry, err = policy.LoadRegistry(path)
		d.Logger.Info("control definitions loaded", zap.String("path", path))
	} else {
		registry, err = policy.DefaultRegistry()
		d.Logger.Info("using built-in control definitions")
	}
	if err != nil {
		return registryError(err)
	}

	d.Registry = registry
	d.Engine = policy.NewEngine(registry)
	d.Logger.Info("control policy ready",
		zap.Strings("controls", registry.Names()),
		zap.String("mandatory", fmt.Sprint(registry.Mandatory())))
	return nil
}

// registryError maps definition load failures onto configuration errors
func registryError(err error) error {
	switch {
	case errors.Is(err, policy.ErrUnknownOperator):
		return services.Wrap(services.ErrUnknownOperator, err)
	case errors.Is(err, policy.ErrMalformedMandatorySpec):
		return services.Wrap(services.ErrMalformedMandatorySpec, err)
	case errors.Is(err, policy.ErrUnknownType), errors.Is(err, policy.ErrInvalidDefinition):
		return services.NewDomainError(services.ErrorTypeConfiguration, "invalid control definitions", err)
	}
	return err
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return auth.ErrMissingSecret
		}
		d.Logger.Warn("JWT_SECRET not set, using the development signing secret")
		secret = developmentJWTSecret
	}

	validator, err := auth.NewHMACValidator(secret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	d.TokenValidator = validator
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	ttl := cfg.Cache.TTL

	d.Gateway = gateway.NewClient(cfg.Gateway, d.Logger.Named("gateway"))
	d.Cards = cards.NewService(d.Repos.Cards, d.Gateway, d.Cache, ttl, d.Metrics, d.Logger.Named("cards"))
	d.ControlView = controls.NewView(d.Repos.Controls, d.Cache, ttl, d.Metrics, d.Logger.Named("controls"))
	d.Controls = controls.NewService(d.Cards, d.Repos, d.Registry, d.ControlView, d.Logger.Named("controls"))
	d.Authorization = authorization.NewService(
		d.Gateway,
		d.ControlView,
		d.Engine,
		d.Repos,
		d.Cards,
		d.Metrics,
		d.Logger.Named("authorization"),
	)
}

// ReadinessChecks returns the dependency probes served on /readyz
func (d *Dependencies) ReadinessChecks() map[string]handlers.Checker {
	checks := make(map[string]handlers.Checker)
	if d.DB != nil {
		checks["database"] = d.DB.HealthCheck
	}
	if d.MemoryStore != nil {
		checks["database"] = d.MemoryStore.Ping
	}
	if store, ok := d.Cache.(*cache.RedisStore); ok {
		checks["cache"] = store.Ping
	}
	return checks
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
	}

	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
