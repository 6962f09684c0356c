package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/chronicle/pkg/observability"
	"github.com/Mindburn-Labs/chronicle/pkg/schema"
)

// Dialect selects driver-specific SQL. Placeholders are $1..$n in ascending
// order, which both lib/pq and modernc.org/sqlite bind positionally; only
// the row-locking clause differs (SQLite serializes writers at the
// transaction level and rejects FOR UPDATE).
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Cursor orders events globally within a (tenant, event type) pair.
type Cursor struct {
	OccurredAt time.Time
	EventID    string
}

// EpochCursor is the position before the first event ever persisted.
func EpochCursor() Cursor {
	return Cursor{OccurredAt: time.Unix(0, 0).UTC(), EventID: uuid.Nil.String()}
}

// Timestamps are persisted as fixed-width UTC strings so that string
// comparison equals chronological comparison in both dialects.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in the store's persisted timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// ParseTime reads a persisted timestamp back. Zero time on failure.
func ParseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// SQLStore implements Store over database/sql. The row lock taken on the
// stream's version row inside Append is the sole concurrency-control
// mechanism: concurrent writers to the same stream serialize, writers to
// different streams proceed fully concurrently.
type SQLStore struct {
	db       *sql.DB
	registry *schema.Registry
	dialect  Dialect
	metrics  *observability.Metrics
	newID    func() string
}

// NewSQLStore creates a store bound to db. The registry is consulted on
// every load; metrics may be nil.
func NewSQLStore(db *sql.DB, registry *schema.Registry, dialect Dialect, metrics *observability.Metrics) *SQLStore {
	return &SQLStore{
		db:       db,
		registry: registry,
		dialect:  dialect,
		metrics:  metrics,
		newID:    uuid.NewString,
	}
}

const (
	insertStreamSQL = `INSERT INTO streams (tenant_id, stream_id, stream_type, version) VALUES ($1, $2, $3, 0)`

	updateStreamSQL = `UPDATE streams SET version = $1 WHERE tenant_id = $2 AND stream_id = $3`

	insertEventSQL = `
		INSERT INTO events (tenant_id, stream_id, stream_type, version, event_id, event_type, type_version,
			occurred_at, request_id, correlation_id, actor_type, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	loadStreamSQL = `
		SELECT tenant_id, stream_id, stream_type, version, event_id, event_type, type_version,
			occurred_at, request_id, correlation_id, actor_type, actor_id, payload
		FROM events
		WHERE tenant_id = $1 AND stream_id = $2
		ORDER BY version ASC`

	tenantsSQL = `SELECT DISTINCT tenant_id FROM streams ORDER BY tenant_id`

	eventsByTypeSQL = `
		SELECT tenant_id, stream_id, stream_type, version, event_id, event_type, type_version,
			occurred_at, request_id, correlation_id, actor_type, actor_id, payload
		FROM events
		WHERE tenant_id = $1 AND event_type = $2 AND (occurred_at, event_id) > ($3, $4)
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT $5`
)

// Append implements Store. All-or-nothing: any failure rolls back the
// whole transaction, and a rollback failure never masks the original
// error.
func (s *SQLStore) Append(ctx context.Context, req AppendRequest) (err error) {
	if len(req.Events) == 0 {
		return ErrNoEvents
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var version int64
	lockSQL := `SELECT version FROM streams WHERE tenant_id = $1 AND stream_id = $2` + s.dialect.lockClause()
	scanErr := tx.QueryRowContext(ctx, lockSQL, req.TenantID, req.StreamID).Scan(&version)
	switch {
	case errors.Is(scanErr, sql.ErrNoRows):
		// First append to this stream: version 0 is the natural initial
		// state, so creating the row needs no expected-version check.
		if _, err = tx.ExecContext(ctx, insertStreamSQL, req.TenantID, req.StreamID, req.StreamType); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		version = 0
	case scanErr != nil:
		err = fmt.Errorf("lock stream: %w", scanErr)
		return err
	}

	if version != req.ExpectedVersion {
		s.metrics.RecordConflict(ctx, req.StreamType)
		err = fmt.Errorf("%w: stream %s at version %d, caller expected %d",
			ErrConflict, req.StreamID, version, req.ExpectedVersion)
		return err
	}

	next := version + int64(len(req.Events))
	if _, err = tx.ExecContext(ctx, updateStreamSQL, next, req.TenantID, req.StreamID); err != nil {
		return fmt.Errorf("advance stream version: %w", err)
	}

	v := version
	for _, evt := range req.Events {
		v++
		if _, err = tx.ExecContext(ctx, insertEventSQL,
			req.TenantID, req.StreamID, req.StreamType, v,
			s.newID(), evt.EventType, evt.TypeVersion, FormatTime(evt.OccurredAt),
			req.RequestID, req.CorrelationID, req.Actor.Type, req.Actor.ID,
			string(evt.Payload),
		); err != nil {
			return fmt.Errorf("insert event version %d: %w", v, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	s.metrics.RecordAppended(ctx, int64(len(req.Events)), req.StreamType)
	return nil
}

// LoadStream implements Store. Lock-free; observes only committed state.
func (s *SQLStore) LoadStream(ctx context.Context, tenantID, streamID string) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, loadStreamSQL, tenantID, streamID)
	if err != nil {
		return nil, fmt.Errorf("load stream: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		validated, verr := s.registry.Validate(evt.EventType, evt.TypeVersion, evt.Payload)
		if verr != nil {
			return nil, fmt.Errorf("%w: event %s (%s v%d): %s",
				ErrCorruptEvent, evt.EventID, evt.EventType, evt.TypeVersion, verr.Message)
		}
		evt.Payload = validated
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Tenants returns every tenant that owns at least one stream.
func (s *SQLStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, tenantsSQL)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

// EventsByType returns up to limit events of one type for one tenant with
// position strictly after the cursor, ordered by (occurred_at, event_id)
// ascending. Payloads are returned raw; callers decide validation policy.
func (s *SQLStore) EventsByType(ctx context.Context, tenantID, eventType string, after Cursor, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, eventsByTypeSQL,
		tenantID, eventType, FormatTime(after.OccurredAt), after.EventID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch events by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanAll streams every persisted event to fn in (tenant, stream,
// version) order. Used by the verify command to audit the whole log;
// payloads are raw, fn owns validation.
func (s *SQLStore) ScanAll(ctx context.Context, fn func(StoredEvent) error) error {
	query := `
		SELECT tenant_id, stream_id, stream_type, version, event_id, event_type, type_version,
			occurred_at, request_id, correlation_id, actor_type, actor_id, payload
		FROM events
		ORDER BY tenant_id ASC, stream_id ASC, version ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEvent(rows *sql.Rows) (StoredEvent, error) {
	var evt StoredEvent
	var occurredAt string
	var payload []byte
	if err := rows.Scan(
		&evt.TenantID, &evt.StreamID, &evt.StreamType, &evt.Version,
		&evt.EventID, &evt.EventType, &evt.TypeVersion, &occurredAt,
		&evt.RequestID, &evt.CorrelationID, &evt.ActorType, &evt.ActorID,
		&payload,
	); err != nil {
		return StoredEvent{}, fmt.Errorf("scan event: %w", err)
	}
	evt.OccurredAt = ParseTime(occurredAt)
	evt.Payload = payload
	return evt, nil
}
