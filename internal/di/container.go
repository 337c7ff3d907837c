package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedback-sync/internal/auth"
	authmemory "feedback-sync/internal/auth/adapter/persistence/memory"
	authmongodb "feedback-sync/internal/auth/adapter/persistence/mongodb"
	authredis "feedback-sync/internal/auth/adapter/persistence/redis"
	authrepo "feedback-sync/internal/auth/domain/repository"
	authusecase "feedback-sync/internal/auth/usecase"
	"feedback-sync/internal/config"
	"feedback-sync/internal/feedback/adapter/memstore"
	"feedback-sync/internal/feedback/adapter/mongostore"
	"feedback-sync/internal/feedback/adapter/redisstore"
	"feedback-sync/internal/feedback/adapter/wsclient"
	"feedback-sync/internal/feedback/domain/repository"
	"feedback-sync/internal/feedback/usecase"
	"feedback-sync/internal/navigation"
	"feedback-sync/internal/session"
	"feedback-sync/internal/shared/eventbus"
	"feedback-sync/internal/shared/logger"
	"feedback-sync/internal/shared/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Container owns every component of the client core and the connections
// behind the selected backend.
type Container struct {
	mu sync.RWMutex

	// Configuration
	Config *config.Config
	Logger logger.Logger

	// Shared components
	Bus      *eventbus.EventBus
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Sessions *session.Store

	// Backend
	Store    repository.RemoteStore
	Provider authrepo.IdentityProvider
	Profiles authrepo.ProfileRepository

	// Client core
	Auth        *authusecase.AuthUsecase
	LiveQuery   *usecase.LiveQuery
	Submissions *usecase.SubmissionPipeline
	Navigation  *navigation.Controller

	redisClient *redis.Client
	mongoClient *mongo.Client
	detach      []func()
}

// NewContainer creates the shared components. Call InitializeBackend and then
// InitializeClient before use.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.NewNopLogger()
	}
	registry := prometheus.NewRegistry()
	return &Container{
		Config:   cfg,
		Logger:   log,
		Bus:      eventbus.NewEventBus(log),
		Registry: registry,
		Metrics:  metrics.New(registry),
		Sessions: session.NewStore(log),
	}
}

// Initialize connects the backend and builds the client core.
func (c *Container) Initialize(ctx context.Context) error {
	if err := c.InitializeBackend(ctx); err != nil {
		return err
	}
	return c.InitializeClient()
}

// InitializeBackend builds the RemoteStore and the identity collaborators
// for the configured backend.
func (c *Container) InitializeBackend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Config.Backend {
	case config.BackendMemory:
		repo := authmemory.NewRepository()
		if err := c.localAuthLocked(repo, repo); err != nil {
			return err
		}
		c.Store = memstore.New(c.Logger,
			memstore.WithRules(memstore.DefaultRules()),
			memstore.WithLatencyCompensation(true),
		)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to Redis at %s: %w", c.Config.Redis.Addr, err)
		}
		c.redisClient = client
		repo := authredis.NewRepository(client)
		if err := c.localAuthLocked(repo, repo); err != nil {
			return err
		}
		c.Store = redisstore.New(client, c.Logger)

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.Config.Mongo.URI))
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		c.mongoClient = client
		db := client.Database(c.Config.Mongo.Database)
		repo, err := authmongodb.NewMongoAuthRepository(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to create auth repository: %w", err)
		}
		if err := c.localAuthLocked(repo, repo); err != nil {
			return err
		}
		c.Store = mongostore.New(db, c.Logger)

	case config.BackendRemote:
		client, err := wsclient.New(c.Config.Remote.URL, c.Logger,
			wsclient.WithTimeout(c.Config.Remote.Timeout),
			wsclient.WithMetrics(c.Metrics),
		)
		if err != nil {
			return fmt.Errorf("failed to create remote client: %w", err)
		}
		c.Store = client
		c.Provider = client
		c.Profiles = client

	default:
		return fmt.Errorf("unknown backend %q", c.Config.Backend)
	}

	c.Logger.Infof("backend %s initialized", c.Config.Backend)
	return nil
}

func (c *Container) localAuthLocked(accounts authrepo.AccountRepository, profiles authrepo.ProfileRepository) error {
	module, err := auth.NewAuthModule(accounts, profiles, &c.Config.Auth, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create auth module: %w", err)
	}
	c.Provider = module.Provider()
	c.Profiles = module.Profiles()
	return nil
}

// InitializeClient builds the use cases and the navigation controller, and
// binds the controller and metrics to the event bus.
func (c *Container) InitializeClient() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Store == nil || c.Provider == nil {
		return fmt.Errorf("backend must be initialized before the client core")
	}

	collection := c.Config.Collection
	c.Auth = authusecase.NewAuthUsecase(c.Provider, c.Profiles, c.Sessions, c.Bus, c.Logger)
	c.LiveQuery = usecase.NewLiveQuery(c.Store, c.Sessions, c.Bus, c.Logger, collection)
	c.Submissions = usecase.NewSubmissionPipeline(c.Store, c.Sessions, c.Bus, c.Logger, collection)
	c.Navigation = navigation.NewController(c.Logger)

	c.detach = append(c.detach,
		c.Metrics.Observe(c.Bus),
		c.Navigation.Bind(c.Bus, c.Sessions),
	)
	return nil
}

// HealthCheck pings the backend connections.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.redisClient != nil {
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}
	if c.LiveQuery != nil {
		if err := c.LiveQuery.Degraded(); err != nil {
			return fmt.Errorf("subscription degraded: %w", err)
		}
	}
	return nil
}

// Cleanup stops the client core and closes connections in reverse order of
// initialization.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.LiveQuery != nil {
		c.LiveQuery.Stop()
	}
	for i := len(c.detach) - 1; i >= 0; i-- {
		c.detach[i]()
	}
	c.detach = nil

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
		c.redisClient = nil
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect MongoDB: %w", err))
		}
		c.mongoClient = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close runs Cleanup with a bounded timeout.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warnf("cleanup errors occurred: %v", err)
		return err
	}
	c.Logger.Debug("container resources closed")
	return nil
}
