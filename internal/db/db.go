// Package db provides the PostgreSQL-backed persistence of SolarScan: the
// analysis archive and the climate catalog. Repositories accept a DBTX
// interface that is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// code runs inside or outside a transaction.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solarscan/internal/config"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the tables used by the repositories. Every statement is
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_requests (
	id              UUID PRIMARY KEY,
	fingerprint     TEXT NOT NULL,
	building_type   TEXT NOT NULL,
	address         TEXT NOT NULL,
	status          TEXT NOT NULL,
	result          BYTEA,
	failure_code    TEXT,
	failure_message TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	expires_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS analysis_requests_expires_at_idx ON analysis_requests (expires_at);
CREATE INDEX IF NOT EXISTS analysis_requests_fingerprint_idx ON analysis_requests (fingerprint, completed_at DESC);

CREATE TABLE IF NOT EXISTS climate_series (
	region       TEXT PRIMARY KEY,
	monthly      DOUBLE PRECISION[] NOT NULL,
	refreshed_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// NewPool opens a connection pool tuned by cfg and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database not reachable: %w", err)
	}
	return pool, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe reports database reachability as a health dependency.
type Probe struct {
	DB Pinger
}

// Name implements core.HealthProbe.
func (p Probe) Name() string { return "database" }

// Check implements core.HealthProbe.
func (p Probe) Check(ctx context.Context) error {
	return p.DB.Ping(ctx)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
