package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinmaksim2021-prog/auc-mob/internal/bucketing"
	"github.com/coinmaksim2021-prog/auc-mob/internal/client"
	"github.com/coinmaksim2021-prog/auc-mob/internal/config"
	redisrepo "github.com/coinmaksim2021-prog/auc-mob/internal/repository/redis"
	"github.com/coinmaksim2021-prog/auc-mob/internal/repository/scylla"
	"github.com/coinmaksim2021-prog/auc-mob/internal/service"
	"github.com/coinmaksim2021-prog/auc-mob/internal/tls"
	"github.com/coinmaksim2021-prog/auc-mob/internal/util"
)

// Factory manages the lifecycle of all application dependencies. Scylla is
// the store of record and mandatory; Redis, Kafka, and ClickHouse are
// accelerations and side channels the service runs without.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	bucketingManager *bucketing.BucketingManager

	userRepository scylla.UserRepository
	userCache      *redisrepo.UserCache
	eventRecorder  *service.EventRecorder
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.bucketingManager = bucketing.NewBucketingManager()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", factory.redisClient != nil),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", factory.clickhouseClient != nil),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Scylla failures are fatal; optional backends degrade with a
// warning outside production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ScyllaDB, the store of record
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	if err := scyllaClient.HealthCheck(); err != nil {
		scyllaClient.Close()
		return fmt.Errorf("scylla health check: %w", err)
	}
	f.scyllaClient = scyllaClient
	util.Info("ScyllaDB client initialized and healthy")

	var optionalErrors []error

	// Redis read-through cache
	if f.config.Redis.Enabled {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			optionalErrors = append(optionalErrors, fmt.Errorf("redis: %w", err))
		} else if err := redisClient.HealthCheck(ctx); err != nil {
			optionalErrors = append(optionalErrors, fmt.Errorf("redis health check: %w", err))
			_ = redisClient.Close()
		} else {
			f.redisClient = redisClient
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka event stream
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			optionalErrors = append(optionalErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse analytics sink
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			optionalErrors = append(optionalErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := chClient.HealthCheck(ctx); err != nil {
			optionalErrors = append(optionalErrors, fmt.Errorf("clickhouse health check: %w", err))
			_ = chClient.Close()
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(optionalErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("service initialization failed: %v", optionalErrors)
		}
		for _, err := range optionalErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) UserRepository() scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient, util.Get())
	}
	return f.userRepository
}

func (f *Factory) UserCache() *redisrepo.UserCache {
	if f.userCache == nil && f.redisClient != nil {
		f.userCache = redisrepo.NewUserCache(
			f.redisClient,
			f.config.Redis.UserTTL,
			f.config.Redis.CodeTTL,
		)
	}
	return f.userCache
}

func (f *Factory) EventRecorder() *service.EventRecorder {
	if f.eventRecorder == nil && (f.kafkaProducer != nil || f.clickhouseClient != nil) {
		f.eventRecorder = service.NewEventRecorder(
			f.kafkaProducer,
			f.clickhouseClient,
			f.bucketingManager,
			f.config.Kafka,
			util.Get(),
		)
	}
	return f.eventRecorder
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.UserCache(),
			f.EventRecorder(),
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes all initialized backends in parallel.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		if err != nil {
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if f.scyllaClient == nil {
			record("scylla", fmt.Errorf("scylla client not initialized"))
			return nil
		}
		record("scylla", f.scyllaClient.HealthCheck())
		return nil
	})

	if f.redisClient != nil {
		g.Go(func() error {
			record("redis", f.redisClient.HealthCheck(ctx))
			return nil
		})
	}

	if f.clickhouseClient != nil {
		g.Go(func() error {
			record("clickhouse", f.clickhouseClient.HealthCheck(ctx))
			return nil
		})
	}

	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
			return nil
		})
	}

	_ = g.Wait()

	return healthErrors
}

// IsHealthy reports whether the store of record is reachable. Optional
// backends never fail readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	return healthErrors["scylla"] == nil
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}
