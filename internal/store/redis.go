package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/presetd/internal/core"
	"github.com/redis/go-redis/v9"
)

// Key layout
const (
	defaultRedisPrefix = "presetd"
	redisNamespaceKey  = "%s:presets:%s" // hash: presetName -> JSON
	redisIndexKey      = "%s:namespaces" // set of presetPaths
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisStore keeps each namespace in one Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Address, err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) namespaceKey(presetPath string) string {
	return fmt.Sprintf(redisNamespaceKey, r.prefix, presetPath)
}

func (r *RedisStore) indexKey() string {
	return fmt.Sprintf(redisIndexKey, r.prefix)
}

func (r *RedisStore) List(ctx context.Context, presetPath string) ([]string, error) {
	names, err := r.client.HKeys(ctx, r.namespaceKey(presetPath)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", presetPath, err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	data, err := r.client.HGet(ctx, r.namespaceKey(presetPath), presetName).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ParameterSet{}, notFound(presetPath, presetName)
	}
	if err != nil {
		return core.ParameterSet{}, fmt.Errorf("reading %s/%s: %w", presetPath, presetName, err)
	}

	var ps core.ParameterSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return core.ParameterSet{}, fmt.Errorf("decoding %s/%s: %w", presetPath, presetName, err)
	}
	return ps, nil
}

func (r *RedisStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", presetPath, presetName, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.namespaceKey(presetPath), presetName, data)
		pipe.SAdd(ctx, r.indexKey(), presetPath)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", presetPath, presetName, err)
	}
	return nil
}

// Delete removes the hash field. HDEL of a missing field is not an error.
func (r *RedisStore) Delete(ctx context.Context, presetPath, presetName string) error {
	if err := r.client.HDel(ctx, r.namespaceKey(presetPath), presetName).Err(); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", presetPath, presetName, err)
	}
	return nil
}

// Namespaces returns the indexed namespaces that still hold records.
func (r *RedisStore) Namespaces(ctx context.Context) ([]string, error) {
	paths, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}

	live := paths[:0]
	for _, p := range paths {
		n, err := r.client.HLen(ctx, r.namespaceKey(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", p, err)
		}
		if n == 0 {
			if err := r.client.SRem(ctx, r.indexKey(), p).Err(); err != nil {
				return nil, fmt.Errorf("pruning %s: %w", p, err)
			}
			continue
		}
		live = append(live, p)
	}
	sort.Strings(live)
	return live, nil
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
