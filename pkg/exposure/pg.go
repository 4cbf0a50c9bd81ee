package exposure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGConfig describes the Postgres connection used for exposure storage.
// Fields can be populated from environment variables via github.com/caarlos0/env.
type PGConfig struct {
	ConnectionString string        `env:"ROLLOUT_DATABASE_URL"`
	MaxConns         int32         `env:"ROLLOUT_DATABASE_MAX_CONNS" envDefault:"4"`
	RetryAttempts    int           `env:"ROLLOUT_DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"ROLLOUT_DATABASE_RETRY_INTERVAL" envDefault:"3s"`
}

// PGStorage persists exposure records into a Postgres table via pgx.
// It implements Storage for use with WriterSink.
type PGStorage struct {
	pool  *pgxpool.Pool
	table string
}

// PGStorageOption configures a PGStorage.
type PGStorageOption func(*PGStorage)

// WithTable overrides the target table name. Default is "exposure_records".
func WithTable(name string) PGStorageOption {
	return func(s *PGStorage) {
		if name != "" {
			s.table = name
		}
	}
}

// NewPGStorage wraps an existing connection pool.
func NewPGStorage(pool *pgxpool.Pool, opts ...PGStorageOption) (*PGStorage, error) {
	if pool == nil {
		return nil, errors.New("pgx pool cannot be nil")
	}
	s := &PGStorage{pool: pool, table: "exposure_records"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConnectPGStorage opens a pool from config with linear retry, so a service
// starting alongside its database does not crash-loop on the first refused
// connection.
func ConnectPGStorage(ctx context.Context, cfg PGConfig, opts ...PGStorageOption) (*PGStorage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	var pool *pgxpool.Pool
	for i := range max(cfg.RetryAttempts, 1) {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return NewPGStorage(pool, opts...)
			}
			pool.Close()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("database not ready: %w", err)
}

// EnsureSchema creates the exposure table if it does not exist yet.
func (s *PGStorage) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			identity TEXT NOT NULL,
			feature_key TEXT NOT NULL,
			decision BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			policy_version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table))
	if err != nil {
		return fmt.Errorf("ensure exposure schema: %w", err)
	}
	return nil
}

// StoreBatch inserts all records in a single batched round trip.
func (s *PGStorage) StoreBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, identity, feature_key, decision, reason, policy_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table)
	for _, rec := range records {
		batch.Queue(query,
			rec.ID, rec.Identity, rec.FeatureKey, rec.Decision,
			rec.Reason, rec.PolicyVersion, rec.CreatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert exposure record: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool.
func (s *PGStorage) Close() {
	s.pool.Close()
}
