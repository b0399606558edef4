package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"whitelist/internal/admission/ports"
	memorystore "whitelist/internal/admission/store/memory"
	postgresstore "whitelist/internal/admission/store/postgres"
	redisstore "whitelist/internal/admission/store/redis"
	sqlitestore "whitelist/internal/admission/store/sqlite"
	"whitelist/internal/platform/config"
	"whitelist/internal/platform/kafka"
	"whitelist/internal/platform/postgres"
	platformredis "whitelist/internal/platform/redis"
	"whitelist/internal/platform/sqlite"
	ratelimit "whitelist/internal/ratelimit/middleware"
	"whitelist/internal/ratelimit/store/bucket"
	httptransport "whitelist/internal/transport/http"
	audit "whitelist/pkg/platform/audit"
	auditmemory "whitelist/pkg/platform/audit/store/memory"
	auditpostgres "whitelist/pkg/platform/audit/store/postgres"
)

// backend is the selected registry store plus the resources behind it.
type backend struct {
	store  ports.Store
	db     *sql.DB
	redis  *platformredis.Client
	health []httptransport.HealthCheck
	close  func()
}

func openBackend(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backend, error) {
	switch cfg.Whitelist.Store {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &backend{
			store:  postgresstore.New(db),
			db:     db,
			health: []httptransport.HealthCheck{{Name: "postgres", Check: db.PingContext}},
			close:  closeLogged(logger, "postgres", db.Close),
		}, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  sqlitestore.New(db),
			db:     db,
			health: []httptransport.HealthCheck{{Name: "sqlite", Check: db.PingContext}},
			close:  closeLogged(logger, "sqlite", db.Close),
		}, nil

	case config.StoreRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  redisstore.New(client.Client, cfg.Redis.KeyPrefix),
			redis:  client,
			health: []httptransport.HealthCheck{{Name: "redis", Check: client.Health}},
			close:  closeLogged(logger, "redis", client.Close),
		}, nil

	default:
		logger.WarnContext(ctx, "using in-memory store; the whitelist will not survive a restart")
		return &backend{store: memorystore.New(), close: func() {}}, nil
	}
}

// auditSink is where published audit events end up.
type auditSink struct {
	sink   audit.Sink
	health []httptransport.HealthCheck
	close  func()
}

// openAuditSink prefers Kafka when brokers are configured, then the postgres
// audit table when the registry lives in postgres, then memory.
func openAuditSink(ctx context.Context, cfg config.Server, b *backend, logger *slog.Logger) (*auditSink, error) {
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return &auditSink{
			sink:   producer,
			health: []httptransport.HealthCheck{{Name: "kafka", Check: producer.Health}},
			close: func() {
				if err := producer.Close(context.Background()); err != nil {
					logger.Error("failed to close kafka producer", "error", err)
				}
			},
		}, nil
	}
	if cfg.Whitelist.Store == config.StorePostgres && b.db != nil {
		return &auditSink{sink: auditpostgres.New(b.db), close: func() {}}, nil
	}
	return &auditSink{sink: auditmemory.NewInMemoryStore(), close: func() {}}, nil
}

func closeLogged(logger *slog.Logger, name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			logger.Error("failed to close "+name, "error", err)
		}
	}
}

// newRateLimiter shares windows through redis when the registry lives there.
func newRateLimiter(cfg config.Server, b *backend, logger *slog.Logger) *ratelimit.Middleware {
	var store ratelimit.BucketStore = bucket.NewInMemoryBucketStore()
	if b.redis != nil {
		store = bucket.NewRedisBucketStore(b.redis.Client, cfg.Redis.KeyPrefix)
	}
	return ratelimit.New(store, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled))
}
