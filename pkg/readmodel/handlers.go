package readmodel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/chronicle/pkg/domain/workspace"
	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
	"github.com/Mindburn-Labs/chronicle/pkg/projection"
)

// Handlers returns the projection handler map maintaining the workspace
// read model. cache may be nil; when set, rows are written through to it
// so lookups can skip the database.
//
// Checkpoints are independent per event type, so a rename can be
// delivered before its create: the repository answers ErrNotFound, the
// worker dead-letters and retries, and the handlers converge once the
// create projection catches up.
func Handlers(repo *WorkspaceRepository, cache *WorkspaceCache) map[string]projection.Handler {
	return map[string]projection.Handler{
		workspace.CreatedType: func(ctx context.Context, evt eventstore.StoredEvent) error {
			var p workspace.CreatedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", evt.EventType, err)
			}
			ws := Workspace{
				TenantID:    evt.TenantID,
				WorkspaceID: p.WorkspaceID,
				Name:        p.Name,
				CreatedAt:   evt.OccurredAt,
			}
			if err := repo.Upsert(ctx, ws); err != nil {
				return err
			}
			return cache.Set(ctx, ws)
		},

		workspace.RenamedType: func(ctx context.Context, evt eventstore.StoredEvent) error {
			var p workspace.RenamedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", evt.EventType, err)
			}
			if err := repo.Rename(ctx, evt.TenantID, p.WorkspaceID, p.Name); err != nil {
				return err
			}
			return cache.Invalidate(ctx, evt.TenantID, p.WorkspaceID)
		},

		workspace.ArchivedType: func(ctx context.Context, evt eventstore.StoredEvent) error {
			var p workspace.ArchivedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", evt.EventType, err)
			}
			if err := repo.SetArchived(ctx, evt.TenantID, p.WorkspaceID); err != nil {
				return err
			}
			return cache.Invalidate(ctx, evt.TenantID, p.WorkspaceID)
		},
	}
}
