package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newthinker/presetd/internal/core"
)

// inputs is JSON rather than JSONB so parameter order survives a round trip.
const createPresetsTable = `
CREATE TABLE IF NOT EXISTS preset_records (
	preset_path TEXT NOT NULL,
	preset_name TEXT NOT NULL,
	inputs      JSON NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (preset_path, preset_name)
)`

const (
	listPresetsSQL    = `SELECT preset_name FROM preset_records WHERE preset_path = $1 ORDER BY preset_name`
	loadPresetSQL     = `SELECT inputs FROM preset_records WHERE preset_path = $1 AND preset_name = $2`
	deletePresetSQL   = `DELETE FROM preset_records WHERE preset_path = $1 AND preset_name = $2`
	listNamespacesSQL = `SELECT DISTINCT preset_path FROM preset_records ORDER BY preset_path`
	upsertPresetSQL   = `
INSERT INTO preset_records (preset_path, preset_name, inputs, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (preset_path, preset_name)
DO UPDATE SET inputs = EXCLUDED.inputs, updated_at = NOW()`
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps preset records in a single table.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL. Call Migrate to create the
// schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool, pool: pool}, nil
}

// Migrate creates the preset table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createPresetsTable); err != nil {
		return fmt.Errorf("creating preset_records: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, presetPath string) ([]string, error) {
	rows, err := s.db.Query(ctx, listPresetsSQL, presetPath)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", presetPath, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", presetPath, err)
	}
	return names, nil
}

func (s *PostgresStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	var data []byte
	err := s.db.QueryRow(ctx, loadPresetSQL, presetPath, presetName).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", presetPath, presetName, err)
	}
	if _, err := s.db.Exec(ctx, upsertPresetSQL, presetPath, presetName, string(data)); err != nil {
		return fmt.Errorf("writing %s/%s: %w", presetPath, presetName, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, presetPath, presetName string) error {
	if _, err := s.db.Exec(ctx, deletePresetSQL, presetPath, presetName); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", presetPath, presetName, err)
	}
	return nil
}

func (s *PostgresStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, listNamespacesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
