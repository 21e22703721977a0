package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	Pool   *pgxpool.Pool
	Config *PostgresConfig
}

type PostgresConfig struct {
	URL            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

func NewPostgres(config *PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Postgres{Pool: pool, Config: config}, nil
}

// EnsureSchema creates the identity-store tables when they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             UUID PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		phone          TEXT NOT NULL UNIQUE,
		first_name     TEXT NOT NULL,
		last_name      TEXT NOT NULL,
		role           TEXT NOT NULL DEFAULT 'rider',
		status         TEXT NOT NULL DEFAULT 'active',
		wallet_balance NUMERIC(12,2) NOT NULL DEFAULT 0,
		currency       TEXT NOT NULL DEFAULT 'USD',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS cards (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		card_number TEXT NOT NULL,
		brand       TEXT NOT NULL DEFAULT '',
		card_limit  NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, card_number)
	);

	CREATE TABLE IF NOT EXISTS friendships (
		id         UUID PRIMARY KEY,
		user_low   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_high  UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		blocked    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_low, user_high),
		CHECK (user_low < user_high)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id             UUID PRIMARY KEY,
		user_id        UUID NOT NULL REFERENCES users(id),
		trip_id        TEXT NOT NULL,
		direction      TEXT NOT NULL,
		amount         NUMERIC(12,2) NOT NULL,
		currency       TEXT NOT NULL,
		method         TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_trip ON ledger_entries (trip_id);
	`

	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.Pool.Close()
}
