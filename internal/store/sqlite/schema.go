package sqlite

import (
	"context"
	"database/sql"
)

// EnsureSchema creates core tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
            user_id       TEXT PRIMARY KEY,
            balance       INTEGER NOT NULL CHECK (balance >= 0),
            active        INTEGER NOT NULL DEFAULT 1,
            version       INTEGER NOT NULL DEFAULT 0,
            creation_time TIMESTAMP NOT NULL,
            update_time   TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
            transaction_id TEXT PRIMARY KEY,
            user_id        TEXT NOT NULL REFERENCES accounts(user_id),
            amount         INTEGER NOT NULL,
            kind           TEXT NOT NULL,
            operation      TEXT,
            description    TEXT NOT NULL,
            balance_before INTEGER NOT NULL,
            balance_after  INTEGER NOT NULL CHECK (balance_after >= 0),
            metadata       TEXT,
            sequence       INTEGER NOT NULL,
            creation_time  TIMESTAMP NOT NULL,
            UNIQUE (user_id, sequence)
        );`,
		`CREATE TABLE IF NOT EXISTS code_documents (
            document_id   TEXT PRIMARY KEY,
            user_id       TEXT NOT NULL,
            code          TEXT NOT NULL,
            language      TEXT NOT NULL,
            metadata      TEXT,
            vector_id     TEXT UNIQUE,
            creation_time TIMESTAMP NOT NULL,
            update_time   TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS code_documents_user_idx ON code_documents (user_id, creation_time);`,
		`CREATE TABLE IF NOT EXISTS search_queries (
            query_id      TEXT PRIMARY KEY,
            user_id       TEXT NOT NULL,
            query         TEXT NOT NULL,
            filters       TEXT,
            result_limit  INTEGER NOT NULL,
            result_count  INTEGER NOT NULL,
            credits_used  INTEGER NOT NULL,
            creation_time TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS search_queries_user_idx ON search_queries (user_id, creation_time);`,
		// next_attempt_at is unix milliseconds so readiness compares numerically.
		`CREATE TABLE IF NOT EXISTS outbox (
            id              INTEGER PRIMARY KEY AUTOINCREMENT,
            aggregate_id    TEXT NOT NULL,
            op              TEXT NOT NULL,
            payload         TEXT,
            status          TEXT NOT NULL DEFAULT 'pending',
            attempt_count   INTEGER NOT NULL DEFAULT 0,
            next_attempt_at INTEGER NOT NULL
        );`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
