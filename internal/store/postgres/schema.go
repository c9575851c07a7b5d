package postgres

import (
	"context"
	"database/sql"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
        user_id       TEXT PRIMARY KEY,
        balance       BIGINT NOT NULL CHECK (balance >= 0),
        active        BOOLEAN NOT NULL DEFAULT TRUE,
        version       BIGINT NOT NULL DEFAULT 0,
        creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
        update_time   TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
        transaction_id TEXT PRIMARY KEY,
        user_id        TEXT NOT NULL REFERENCES accounts(user_id),
        amount         BIGINT NOT NULL,
        kind           TEXT NOT NULL,
        operation      TEXT,
        description    TEXT NOT NULL,
        balance_before BIGINT NOT NULL,
        balance_after  BIGINT NOT NULL CHECK (balance_after >= 0),
        metadata       JSONB,
        sequence       BIGINT NOT NULL,
        creation_time  TIMESTAMPTZ NOT NULL,
        UNIQUE (user_id, sequence)
    )`,
	`CREATE TABLE IF NOT EXISTS code_documents (
        document_id   TEXT PRIMARY KEY,
        user_id       TEXT NOT NULL,
        code          TEXT NOT NULL,
        language      TEXT NOT NULL,
        metadata      JSONB,
        vector_id     TEXT UNIQUE,
        creation_time TIMESTAMPTZ NOT NULL,
        update_time   TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS code_documents_user_idx ON code_documents (user_id, creation_time DESC)`,
	`CREATE TABLE IF NOT EXISTS search_queries (
        query_id      TEXT PRIMARY KEY,
        user_id       TEXT NOT NULL,
        query         TEXT NOT NULL,
        filters       JSONB,
        result_limit  INT NOT NULL,
        result_count  INT NOT NULL,
        credits_used  BIGINT NOT NULL,
        creation_time TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS search_queries_user_idx ON search_queries (user_id, creation_time DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox (
        id              BIGSERIAL PRIMARY KEY,
        aggregate_id    TEXT NOT NULL,
        op              TEXT NOT NULL,
        payload         JSONB,
        status          TEXT NOT NULL DEFAULT 'pending',
        attempt_count   INT NOT NULL DEFAULT 0,
        next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
        update_time     TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS outbox_ready_idx ON outbox (status, next_attempt_at)`,
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
