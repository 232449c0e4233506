// pkg/db/schema.go
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied on startup. The two slot indexes back the expiry
// sweep's (is_active, expires_at) scan and the per-owner lookups.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          BIGSERIAL PRIMARY KEY,
    username    TEXT NOT NULL UNIQUE,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS wallets (
    id          BIGSERIAL PRIMARY KEY,
    owner_id    BIGINT NOT NULL REFERENCES users(id),
    currency    TEXT NOT NULL,
    balance     NUMERIC(20, 8) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (owner_id, currency)
);

CREATE TABLE IF NOT EXISTS slots (
    id               UUID PRIMARY KEY,
    owner_id         BIGINT NOT NULL REFERENCES users(id),
    principal        NUMERIC(20, 8) NOT NULL CHECK (principal >= 0),
    weekly_rate      NUMERIC(12, 8) NOT NULL,
    start_at         TIMESTAMPTZ NOT NULL,
    expires_at       TIMESTAMPTZ NOT NULL,
    last_accrued_at  TIMESTAMPTZ NOT NULL,
    accrued_earnings NUMERIC(20, 8) NOT NULL DEFAULT 0,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slots_active_expires ON slots (is_active, expires_at);
CREATE INDEX IF NOT EXISTS idx_slots_owner ON slots (owner_id);

CREATE TABLE IF NOT EXISTS activity_log (
    id          UUID PRIMARY KEY,
    owner_id    BIGINT NOT NULL REFERENCES users(id),
    type        TEXT NOT NULL,
    amount      NUMERIC(20, 8) NOT NULL,
    currency    TEXT NOT NULL,
    slot_count  INT NOT NULL DEFAULT 0,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_owner ON activity_log (owner_id, created_at DESC);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
