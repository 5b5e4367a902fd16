package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	apperrors "github.com/Shugur-Network/nostr-client/internal/errors"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	pubkey     TEXT NOT NULL,
	kind       INTEGER NOT NULL,
	created_at BIGINT NOT NULL,
	content    TEXT NOT NULL,
	tags       JSONB NOT NULL DEFAULT '[]',
	sig        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_pubkey_kind_created_idx ON events (pubkey, kind, created_at DESC);
CREATE INDEX IF NOT EXISTS events_kind_created_idx ON events (kind, created_at DESC);
CREATE INDEX IF NOT EXISTS events_created_idx ON events (created_at DESC);
`

// DB is the Postgres-backed event cache. It implements domain.EventDao.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// createPool builds a pgxpool sized for the expected client concurrency. A
// client talks to a handful of relays, so the tiers are small.
func createPool(ctx context.Context, dbURI string, maxConcurrency int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}

	if maxConcurrency <= 10 {
		cfg.MaxConns = constants.DBPoolSmallMaxConns
		cfg.MinConns = constants.DBPoolSmallMinConns
	} else {
		cfg.MaxConns = constants.DBPoolMediumMaxConns
		cfg.MinConns = constants.DBPoolMediumMinConns
	}
	cfg.MaxConnLifetime = constants.DBConnMaxLifetime
	cfg.MaxConnIdleTime = constants.DBConnMaxIdleTime
	cfg.ConnConfig.ConnectTimeout = constants.DBConnAcquireTimeout

	return pgxpool.NewWithConfig(ctx, cfg)
}

// InitDB connects to the event cache database with retries and ensures the
// schema exists.
func InitDB(ctx context.Context, dbURI string, maxConcurrency int) (*DB, error) {
	log := logger.New("storage")

	var pool *pgxpool.Pool
	var err error
	backoff := 2 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		pool, err = createPool(ctx, dbURI, maxConcurrency)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		log.Warn("Database connection failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return nil, apperrors.DatabaseError("connect", err)
	}

	db := &DB{Pool: pool, log: log}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, apperrors.DatabaseError("schema init", err)
	}

	log.Info("Event cache database ready",
		zap.Int32("max_conns", pool.Config().MaxConns))
	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}
