package eventstore

import (
	"encoding/json"
	"time"
)

// Actor identifies who (or what) caused an append.
type Actor struct {
	Type string
	ID   string
}

// EventRecord is a domain event before persistence. It carries no identity;
// the store assigns the stream version and event id on append.
type EventRecord struct {
	EventType   string
	TypeVersion int
	OccurredAt  time.Time
	Payload     json.RawMessage
}

// AppendRequest describes one atomic append to a single stream.
// ExpectedVersion is the stream version the caller last observed; 0 means
// the caller believes the stream does not exist yet.
type AppendRequest struct {
	TenantID        string
	StreamID        string
	StreamType      string
	ExpectedVersion int64
	Events          []EventRecord
	RequestID       string
	CorrelationID   string
	Actor           Actor
}

// StoredEvent is an immutable persisted event. Fields are never mutated
// after the row is written; treat values as read-only.
type StoredEvent struct {
	TenantID      string
	StreamID      string
	StreamType    string
	Version       int64
	EventID       string
	EventType     string
	TypeVersion   int
	OccurredAt    time.Time
	RequestID     string
	CorrelationID string
	ActorType     string
	ActorID       string
	Payload       json.RawMessage
}
