package workspace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
)

// State is the reconstructed workspace. A nil *State means the stream has
// no events the aggregate understands yet.
type State struct {
	WorkspaceID string
	Name        string
	CreatedAt   time.Time
	Archived    bool
}

// DecisionError reports why a command cannot produce an event. It is an
// expected outcome, distinct from storage failures.
type DecisionError struct {
	Code    string
	Message string
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeNotFound      = "NOT_FOUND"
	CodeArchived      = "ARCHIVED"
)

// Apply folds one event into prior state. It is a pure left-fold: prior
// state is never mutated, and unknown event types leave state unchanged so
// future event types do not break replay.
func Apply(state *State, evt eventstore.StoredEvent) *State {
	switch evt.EventType {
	case CreatedType:
		var p CreatedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return state
		}
		return &State{WorkspaceID: p.WorkspaceID, Name: p.Name, CreatedAt: evt.OccurredAt}
	case RenamedType:
		if state == nil {
			return nil
		}
		var p RenamedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return state
		}
		next := *state
		next.Name = p.Name
		return &next
	case ArchivedType:
		if state == nil {
			return nil
		}
		next := *state
		next.Archived = true
		return &next
	default:
		return state
	}
}

// Fold replays an ordered stream into current state.
func Fold(events []eventstore.StoredEvent) *State {
	var state *State
	for _, evt := range events {
		state = Apply(state, evt)
	}
	return state
}

// DecideCreate produces workspace.created, or reports that the workspace
// already exists.
func DecideCreate(state *State, p CreatedPayload, occurredAt time.Time) (eventstore.EventRecord, error) {
	if state != nil {
		return eventstore.EventRecord{}, &DecisionError{Code: CodeAlreadyExists, Message: "workspace already exists"}
	}
	return newRecord(CreatedType, p, occurredAt)
}

// DecideRename produces workspace.renamed for a live workspace.
func DecideRename(state *State, name string, occurredAt time.Time) (eventstore.EventRecord, error) {
	if state == nil {
		return eventstore.EventRecord{}, &DecisionError{Code: CodeNotFound, Message: "workspace does not exist"}
	}
	if state.Archived {
		return eventstore.EventRecord{}, &DecisionError{Code: CodeArchived, Message: "workspace is archived"}
	}
	return newRecord(RenamedType, RenamedPayload{WorkspaceID: state.WorkspaceID, Name: name}, occurredAt)
}

// DecideArchive produces workspace.archived; archiving twice is rejected.
func DecideArchive(state *State, occurredAt time.Time) (eventstore.EventRecord, error) {
	if state == nil {
		return eventstore.EventRecord{}, &DecisionError{Code: CodeNotFound, Message: "workspace does not exist"}
	}
	if state.Archived {
		return eventstore.EventRecord{}, &DecisionError{Code: CodeArchived, Message: "workspace is already archived"}
	}
	return newRecord(ArchivedType, ArchivedPayload{WorkspaceID: state.WorkspaceID}, occurredAt)
}

func newRecord(eventType string, payload any, occurredAt time.Time) (eventstore.EventRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return eventstore.EventRecord{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return eventstore.EventRecord{
		EventType:   eventType,
		TypeVersion: 1,
		OccurredAt:  occurredAt,
		Payload:     raw,
	}, nil
}
