package workspace

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
)

// Command carries the request-scoped provenance every operation needs.
type Command struct {
	TenantID      string
	WorkspaceID   string
	RequestID     string
	CorrelationID string
	Actor         eventstore.Actor
	OccurredAt    time.Time
}

// Service composes loadStream, Fold, Decide* and Append into the
// read-modify-write cycle. eventstore.ErrConflict escapes unchanged: the
// remedy is reload-decide-retry, owned by the caller.
type Service struct {
	store eventstore.Store
}

func NewService(store eventstore.Store) *Service {
	return &Service{store: store}
}

// Create appends workspace.created to a fresh stream.
func (s *Service) Create(ctx context.Context, cmd Command, name, createdBy string) error {
	return s.execute(ctx, cmd, func(state *State) (eventstore.EventRecord, error) {
		return DecideCreate(state, CreatedPayload{
			WorkspaceID: cmd.WorkspaceID,
			Name:        name,
			CreatedBy:   createdBy,
		}, cmd.OccurredAt)
	})
}

// Rename appends workspace.renamed.
func (s *Service) Rename(ctx context.Context, cmd Command, name string) error {
	return s.execute(ctx, cmd, func(state *State) (eventstore.EventRecord, error) {
		return DecideRename(state, name, cmd.OccurredAt)
	})
}

// Archive appends workspace.archived.
func (s *Service) Archive(ctx context.Context, cmd Command) error {
	return s.execute(ctx, cmd, func(state *State) (eventstore.EventRecord, error) {
		return DecideArchive(state, cmd.OccurredAt)
	})
}

func (s *Service) execute(ctx context.Context, cmd Command, decide func(*State) (eventstore.EventRecord, error)) error {
	events, err := s.store.LoadStream(ctx, cmd.TenantID, cmd.WorkspaceID)
	if err != nil {
		return err
	}

	evt, err := decide(Fold(events))
	if err != nil {
		return err
	}

	return s.store.Append(ctx, eventstore.AppendRequest{
		TenantID:        cmd.TenantID,
		StreamID:        cmd.WorkspaceID,
		StreamType:      StreamType,
		ExpectedVersion: int64(len(events)),
		Events:          []eventstore.EventRecord{evt},
		RequestID:       cmd.RequestID,
		CorrelationID:   cmd.CorrelationID,
		Actor:           cmd.Actor,
	})
}
