package main

import (
	"context"
	"fmt"

	"github.com/newthinker/presetd/internal/config"
	"github.com/newthinker/presetd/internal/storage/blob"
	"github.com/newthinker/presetd/internal/store"
	"go.uber.org/zap"
)

// openStore builds the configured persistence backend. The returned close
// function releases its connections.
func openStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory preset storage, presets are lost on exit")
		return store.NewMemoryStore(), noop, nil

	case config.BackendLocalFS:
		fs, err := blob.NewLocalFS(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", cfg.Path, err)
		}
		return store.NewBlobStore(fs), noop, nil

	case config.BackendS3:
		s3, err := blob.NewS3(blob.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating s3 client: %w", err)
		}
		return store.NewBlobStore(s3), noop, nil

	case config.BackendRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil

	case config.BackendPostgres:
		ps, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.Migrate {
			if err := ps.Migrate(ctx); err != nil {
				ps.Close()
				return nil, nil, err
			}
		}
		return ps, ps.Close, nil

	case config.BackendRemote:
		return store.NewRemoteStore(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.Timeout), noop, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
