package eventstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements are kept to the portable subset accepted by both Postgres and
// SQLite so one DDL pass serves either driver.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		tenant_id   TEXT NOT NULL,
		stream_id   TEXT NOT NULL,
		stream_type TEXT NOT NULL,
		version     BIGINT NOT NULL,
		PRIMARY KEY (tenant_id, stream_id)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		tenant_id      TEXT NOT NULL,
		stream_id      TEXT NOT NULL,
		stream_type    TEXT NOT NULL,
		version        BIGINT NOT NULL,
		event_id       TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		type_version   INTEGER NOT NULL,
		occurred_at    TEXT NOT NULL,
		request_id     TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		actor_type     TEXT NOT NULL,
		actor_id       TEXT NOT NULL,
		payload        TEXT NOT NULL,
		PRIMARY KEY (tenant_id, stream_id, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_event_id_idx ON events (event_id)`,
	`CREATE INDEX IF NOT EXISTS events_projection_scan_idx
		ON events (tenant_id, event_type, occurred_at, event_id)`,
	`CREATE TABLE IF NOT EXISTS projection_checkpoints (
		tenant_id        TEXT NOT NULL,
		projection       TEXT NOT NULL,
		last_occurred_at TEXT NOT NULL,
		last_event_id    TEXT NOT NULL,
		PRIMARY KEY (tenant_id, projection)
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		tenant_id      TEXT NOT NULL,
		event_id       TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		reason         TEXT NOT NULL,
		occurred_at    TEXT NOT NULL,
		correlation_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workspace_read_models (
		tenant_id    TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		name         TEXT NOT NULL,
		archived     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TEXT NOT NULL,
		PRIMARY KEY (tenant_id, workspace_id)
	)`,
}

// Migrate applies the schema. Idempotent; safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
