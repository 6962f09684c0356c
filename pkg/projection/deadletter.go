package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
)

// DeadLetter is one append-only audit row for an event that could not be
// validated or handled. Rows are never mutated; the same event may appear
// repeatedly while its failure persists.
type DeadLetter struct {
	TenantID      string
	EventID       string
	EventType     string
	Reason        string
	OccurredAt    time.Time
	CorrelationID string
}

// DeadLetterStore records poison events, written only by the worker.
type DeadLetterStore interface {
	Insert(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, tenantID string) ([]DeadLetter, error)
}

// SQLDeadLetterStore implements DeadLetterStore over database/sql.
type SQLDeadLetterStore struct {
	db *sql.DB
}

func NewSQLDeadLetterStore(db *sql.DB) *SQLDeadLetterStore {
	return &SQLDeadLetterStore{db: db}
}

func (s *SQLDeadLetterStore) Insert(ctx context.Context, dl DeadLetter) error {
	query := `
		INSERT INTO dead_letters (tenant_id, event_id, event_type, reason, occurred_at, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		dl.TenantID, dl.EventID, dl.EventType, dl.Reason,
		eventstore.FormatTime(dl.OccurredAt), dl.CorrelationID)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (s *SQLDeadLetterStore) List(ctx context.Context, tenantID string) ([]DeadLetter, error) {
	query := `
		SELECT tenant_id, event_id, event_type, reason, occurred_at, correlation_id
		FROM dead_letters
		WHERE tenant_id = $1
		ORDER BY occurred_at ASC, event_id ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var occurredAt string
		if err := rows.Scan(&dl.TenantID, &dl.EventID, &dl.EventType, &dl.Reason, &occurredAt, &dl.CorrelationID); err != nil {
			return nil, err
		}
		dl.OccurredAt = eventstore.ParseTime(occurredAt)
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
