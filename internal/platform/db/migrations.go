package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is a forward-only schema change.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// migrationLockKey serialises concurrent migrators through pg_advisory_xact_lock.
const migrationLockKey = 7231000001

// Migrations lists the ledger schema in application order.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_accounts",
		SQL: `
CREATE TABLE IF NOT EXISTS accounts (
    id             BIGSERIAL PRIMARY KEY,
    account_number VARCHAR(32)  NOT NULL,
    name           VARCHAR(256) NOT NULL,
    account_type   SMALLINT     NOT NULL CHECK (account_type BETWEEN 1 AND 5),
    parent_id      BIGINT       NULL REFERENCES accounts (id) ON DELETE CASCADE,
    description    TEXT         NOT NULL DEFAULT '',
    inactive       BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_accounts_number UNIQUE (account_number)
);

CREATE INDEX IF NOT EXISTS idx_accounts_number_pattern ON accounts (account_number text_pattern_ops);
CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts (parent_id);
`,
	},
	{
		Version: 2,
		Name:    "create_sequences",
		SQL: `
CREATE TABLE IF NOT EXISTS sequences (
    prefix     TEXT PRIMARY KEY,
    last_value BIGINT      NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		Version: 3,
		Name:    "create_vouchers",
		SQL: `
CREATE TABLE IF NOT EXISTS voucher_types (
    id         BIGSERIAL PRIMARY KEY,
    name       VARCHAR(128) NOT NULL,
    prefix     VARCHAR(4)   NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_voucher_types_prefix UNIQUE (prefix)
);

CREATE TABLE IF NOT EXISTS vouchers (
    id              BIGSERIAL PRIMARY KEY,
    voucher_number  VARCHAR(32) NOT NULL,
    voucher_date    DATE        NOT NULL,
    voucher_type_id BIGINT      NOT NULL REFERENCES voucher_types (id) ON DELETE CASCADE,
    description     TEXT        NULL,
    status          SMALLINT    NOT NULL DEFAULT 1 CHECK (status BETWEEN 1 AND 3),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_vouchers_number UNIQUE (voucher_number)
);

CREATE TABLE IF NOT EXISTS ledgers (
    id         BIGSERIAL PRIMARY KEY,
    voucher_id BIGINT         NOT NULL REFERENCES vouchers (id) ON DELETE CASCADE,
    account_id BIGINT         NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
    amount     NUMERIC(30, 6) NOT NULL CHECK (amount <> 0),
    status     SMALLINT       NOT NULL DEFAULT 1 CHECK (status BETWEEN 1 AND 3),
    created_at TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ    NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledgers_voucher ON ledgers (voucher_id);
`,
	},
	{
		Version: 4,
		Name:    "create_audit_logs",
		SQL: `
CREATE TABLE IF NOT EXISTS audit_logs (
    id          BIGSERIAL PRIMARY KEY,
    actor_id    BIGINT      NULL,
    action      TEXT        NOT NULL,
    entity      TEXT        NOT NULL,
    entity_id   TEXT        NOT NULL,
    meta        JSONB       NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity, entity_id);
`,
	},
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT        NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}
	for _, m := range Migrations {
		err := WithTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLockKey)); err != nil {
				return err
			}
			var applied bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`, m.Version).Scan(&applied); err != nil {
				return err
			}
			if applied {
				return nil
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("platform/db: migration %d %s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}
