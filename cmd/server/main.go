package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"permission-gate/internal/admin"
	"permission-gate/internal/approval"
	"permission-gate/internal/auth"
	"permission-gate/internal/authz"
	"permission-gate/internal/condition"
	"permission-gate/internal/config"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
	"permission-gate/internal/source"
	"permission-gate/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config and logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Record store for condition counts
	var tables condition.RecordCounter
	if cfg.Database.Enabled() {
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		tables = condition.SQLSource{Store: db}
		logger.Info("database connected", zap.String("driver", cfg.Database.Driver))
	} else {
		logger.Warn("no database configured, conditions on table collections will fail")
	}

	// 3. Collection schema
	reg := metadata.NewRegistry()
	if err := metadata.LoadFile(cfg.SchemaPath, reg, logger); err != nil {
		logger.Warn("failed to load collection schema", zap.String("path", cfg.SchemaPath), zap.Error(err))
	}

	// 4. Permission cache
	snapshots, err := newSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create snapshot store", zap.Error(err))
	}
	client := source.NewClient(cfg.Source, source.WithLogger(logger))
	cache := permission.NewCache(client, snapshots, cfg.Permissions.TTL(), permission.WithLogger(logger))

	// 5. Decision services
	evaluator := condition.NewEvaluator(tables, logger)
	engine := approval.NewEngine(evaluator, auth.NewApprovalVerifier(cfg.EnvSecret), logger)
	gateway := authz.NewGateway(cache, engine, reg, logger)

	// 6. Instrumentation
	d := deps{
		authSecret: cfg.AuthSecret,
		gateway:    gateway,
		admin:      admin.NewHandler(cache, reg, cfg.SchemaPath, logger),
		logger:     logger,
	}
	if cfg.Instrument.Enabled {
		d.events = instrument.NewEventBuffer(cfg.Instrument.BufferSize)
		d.tracer = instrument.NewTracer(d.events, logger, cfg.Instrument.SamplingRate)
		retention := time.Duration(cfg.Instrument.RetentionSeconds) * time.Second
		go instrument.RunCleanup(ctx, d.events, retention, time.Minute, logger)
	}

	// 7. Serve until interrupted
	app := newApp(d)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr), zap.Duration("permissions_ttl", cfg.Permissions.TTL()))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newSnapshotStore(ctx context.Context, cfg *config.Config) (permission.SnapshotStore, error) {
	if cfg.Permissions.CacheDriver != "redis" {
		return permission.NewMemoryStore(cfg.Permissions.MaxRenderings)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return permission.NewRedisStore(client, cfg.Redis.KeyPrefix), nil
}
