// Package eventstore persists domain events as ordered, append-only,
// per-tenant streams with optimistic concurrency control.
package eventstore

import (
	"context"
	"errors"
)

var (
	// ErrConflict indicates the stream's current version did not match the
	// caller's expected version. The caller should reload the stream,
	// re-decide, and retry; the store never retries internally.
	ErrConflict = errors.New("expected version mismatch")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.New("no events to append")

	// ErrCorruptEvent indicates a persisted payload failed its registered
	// schema at load time. Unlike the projection worker's dead-letter path
	// this is a hard failure: a decision function must never see an
	// unvalidated payload.
	ErrCorruptEvent = errors.New("persisted event payload failed validation")
)

// Store is the event store contract.
type Store interface {
	// Append atomically appends the request's events to one stream,
	// assigning consecutive versions starting at ExpectedVersion+1.
	// Returns ErrConflict when the stream moved past ExpectedVersion;
	// nothing is persisted in that case.
	Append(ctx context.Context, req AppendRequest) error

	// LoadStream returns the stream's events ordered by version ascending,
	// contiguous from 1. Every payload is re-validated against the schema
	// registry; a failure returns ErrCorruptEvent.
	LoadStream(ctx context.Context, tenantID, streamID string) ([]StoredEvent, error)
}
