// Package projection replays the persisted event log into read models.
// A single worker scans per tenant and per registered projection,
// validates and applies each event in order, advances a durable
// checkpoint after every success, and diverts unprocessable events to the
// dead-letter store.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
)

// CheckpointStore persists the per-(tenant, projection) cursor. Only the
// worker writes checkpoints.
type CheckpointStore interface {
	// Load returns the cursor for the pair; absence means "never
	// processed" and yields the epoch cursor.
	Load(ctx context.Context, tenantID, projection string) (eventstore.Cursor, error)

	// Save durably upserts the cursor.
	Save(ctx context.Context, tenantID, projection string, cursor eventstore.Cursor) error

	// Reset deletes every checkpoint for a tenant, forcing a full replay
	// on the next pass.
	Reset(ctx context.Context, tenantID string) error
}

// SQLCheckpointStore implements CheckpointStore over database/sql for
// Postgres and SQLite.
type SQLCheckpointStore struct {
	db *sql.DB
}

func NewSQLCheckpointStore(db *sql.DB) *SQLCheckpointStore {
	return &SQLCheckpointStore{db: db}
}

func (s *SQLCheckpointStore) Load(ctx context.Context, tenantID, projection string) (eventstore.Cursor, error) {
	query := `SELECT last_occurred_at, last_event_id FROM projection_checkpoints WHERE tenant_id = $1 AND projection = $2`

	var occurredAt, eventID string
	err := s.db.QueryRowContext(ctx, query, tenantID, projection).Scan(&occurredAt, &eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstore.EpochCursor(), nil
	}
	if err != nil {
		return eventstore.Cursor{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return eventstore.Cursor{OccurredAt: eventstore.ParseTime(occurredAt), EventID: eventID}, nil
}

func (s *SQLCheckpointStore) Save(ctx context.Context, tenantID, projection string, cursor eventstore.Cursor) error {
	query := `
		INSERT INTO projection_checkpoints (tenant_id, projection, last_occurred_at, last_event_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, projection) DO UPDATE SET
			last_occurred_at = excluded.last_occurred_at,
			last_event_id = excluded.last_event_id`

	_, err := s.db.ExecContext(ctx, query, tenantID, projection, eventstore.FormatTime(cursor.OccurredAt), cursor.EventID)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLCheckpointStore) Reset(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projection_checkpoints WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	return nil
}
