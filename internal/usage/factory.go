package usage

import (
	"context"
	"errors"
	"fmt"

	"househunt/config"
	"househunt/internal/storage"
)

// Result holds the usage logger and the storage it owns.
type Result struct {
	Logger  LoggerInterface
	Storage storage.Storage
}

// Close flushes the logger, then closes storage. Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		r.Storage = nil
	}
	return errors.Join(errs...)
}

// New builds the usage logger described by cfg. When usage tracking is
// disabled it returns a NoopLogger and opens no storage.
func New(ctx context.Context, cfg *config.Config) (*Result, error) {
	if !cfg.Usage.Enabled {
		return &Result{Logger: NoopLogger{}}, nil
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	usageStore, err := createUsageStore(ctx, store, cfg.Usage.RetentionDays)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(usageStore, buildLoggerConfig(cfg.Usage)),
		Storage: store,
	}, nil
}

func createUsageStore(ctx context.Context, store storage.Storage, retentionDays int) (UsageStore, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool(), retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(ctx, store.MongoDatabase(), retentionDays)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func buildLoggerConfig(usageCfg config.UsageConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = usageCfg.Enabled
	cfg.RetentionDays = usageCfg.RetentionDays
	if usageCfg.BufferSize > 0 {
		cfg.BufferSize = usageCfg.BufferSize
	}
	if usageCfg.FlushInterval > 0 {
		cfg.FlushInterval = usageCfg.FlushInterval
	}
	return cfg
}
