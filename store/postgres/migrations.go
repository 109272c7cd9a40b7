package postgres

import (
	"context"
	"fmt"
)

// migration is one versioned schema step. Applied versions are recorded in
// trueque_migrations and never re-run.
type migration struct {
	Version string
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: "20240101000001",
		Name:    "create_trueque_members",
		SQL: `
CREATE TABLE IF NOT EXISTS trueque_members (
    id           BIGINT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    contact      TEXT NOT NULL DEFAULT '',
    balance      BIGINT NOT NULL DEFAULT 0,
    credit_limit BIGINT NOT NULL DEFAULT 15000,
    asking_price BIGINT NOT NULL DEFAULT 0,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT trueque_members_limit_chk CHECK (balance >= -credit_limit)
);
`,
	},
	{
		Version: "20240101000002",
		Name:    "create_trueque_listings",
		SQL: `
CREATE TABLE IF NOT EXISTS trueque_listings (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    seller_id   BIGINT NOT NULL REFERENCES trueque_members (id),
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    price       BIGINT NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT 'active',
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trueque_listings_seller ON trueque_listings (seller_id);
CREATE INDEX IF NOT EXISTS idx_trueque_listings_band ON trueque_listings (status, price);
`,
	},
	{
		Version: "20240101000003",
		Name:    "create_trueque_exchanges",
		SQL: `
CREATE TABLE IF NOT EXISTS trueque_exchanges (
    id                TEXT PRIMARY KEY,
    initiator_id      BIGINT NOT NULL REFERENCES trueque_members (id),
    counterparty_id   BIGINT NOT NULL REFERENCES trueque_members (id),
    counterparty_name TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    amount            BIGINT NOT NULL DEFAULT 0,
    listing_id        BIGINT REFERENCES trueque_listings (id),
    status            TEXT NOT NULL DEFAULT 'pending',
    idempotency_key   TEXT NOT NULL DEFAULT '',
    occurred_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata          JSONB NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trueque_exchanges_initiator ON trueque_exchanges (initiator_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_trueque_exchanges_counterparty ON trueque_exchanges (counterparty_id, occurred_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trueque_exchanges_idempotency ON trueque_exchanges (idempotency_key) WHERE idempotency_key != '';
`,
	},
	{
		Version: "20240101000004",
		Name:    "create_trueque_conversations",
		SQL: `
CREATE TABLE IF NOT EXISTS trueque_conversations (
    id               TEXT PRIMARY KEY,
    buyer_id         BIGINT NOT NULL REFERENCES trueque_members (id),
    seller_id        BIGINT NOT NULL REFERENCES trueque_members (id),
    last_listing_id  BIGINT REFERENCES trueque_listings (id),
    last_exchange_id TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT trueque_conversations_pair_uq UNIQUE (buyer_id, seller_id)
);
`,
	},
}

// Migrate applies pending migrations in version order. Each step runs in
// its own transaction together with its bookkeeping row.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS trueque_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("migrate: create bookkeeping table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM trueque_migrations WHERE version = $1)`, m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("migrate: check %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("migrate: begin %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // already failing
			return fmt.Errorf("migrate: apply %s (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO trueque_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
		); err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // already failing
			return fmt.Errorf("migrate: record %s: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("migrate: commit %s: %w", m.Version, err)
		}

		s.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}
