// Package readmodel holds the queryable models derived from the event log
// by the projection worker, plus the handlers that maintain them.
package readmodel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
)

// ErrNotFound indicates the read model row does not exist (yet); the
// projection may simply not have caught up.
var ErrNotFound = errors.New("read model row not found")

// Workspace is the flattened read model row.
type Workspace struct {
	TenantID    string
	WorkspaceID string
	Name        string
	Archived    bool
	CreatedAt   time.Time
}

// WorkspaceRepository reads and writes workspace_read_models. Writes come
// only from projection handlers and are idempotent with respect to event
// replay.
type WorkspaceRepository struct {
	db *sql.DB
}

func NewWorkspaceRepository(db *sql.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// Upsert inserts the row, or refreshes name and creation time when a
// replayed create is delivered again. The archived flag is deliberately
// left alone on conflict: the archive projection owns it, and a replayed
// create must not resurrect an archived workspace.
func (r *WorkspaceRepository) Upsert(ctx context.Context, ws Workspace) error {
	query := `
		INSERT INTO workspace_read_models (tenant_id, workspace_id, name, archived, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, workspace_id) DO UPDATE SET
			name = excluded.name,
			created_at = excluded.created_at`

	_, err := r.db.ExecContext(ctx, query,
		ws.TenantID, ws.WorkspaceID, ws.Name, ws.Archived, eventstore.FormatTime(ws.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert workspace read model: %w", err)
	}
	return nil
}

// Rename updates the name; ErrNotFound when the row is absent so the
// caller can retry after the create projection catches up.
func (r *WorkspaceRepository) Rename(ctx context.Context, tenantID, workspaceID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workspace_read_models SET name = $1 WHERE tenant_id = $2 AND workspace_id = $3`,
		name, tenantID, workspaceID)
	if err != nil {
		return fmt.Errorf("rename workspace read model: %w", err)
	}
	return requireRow(res)
}

// SetArchived flags the row; ErrNotFound when absent.
func (r *WorkspaceRepository) SetArchived(ctx context.Context, tenantID, workspaceID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workspace_read_models SET archived = TRUE WHERE tenant_id = $1 AND workspace_id = $2`,
		tenantID, workspaceID)
	if err != nil {
		return fmt.Errorf("archive workspace read model: %w", err)
	}
	return requireRow(res)
}

// FindByID returns the row or ErrNotFound.
func (r *WorkspaceRepository) FindByID(ctx context.Context, tenantID, workspaceID string) (Workspace, error) {
	query := `
		SELECT tenant_id, workspace_id, name, archived, created_at
		FROM workspace_read_models
		WHERE tenant_id = $1 AND workspace_id = $2`

	var ws Workspace
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, tenantID, workspaceID).
		Scan(&ws.TenantID, &ws.WorkspaceID, &ws.Name, &ws.Archived, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Workspace{}, ErrNotFound
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("find workspace read model: %w", err)
	}
	ws.CreatedAt = eventstore.ParseTime(createdAt)
	return ws, nil
}

// ListByTenant returns every row for a tenant ordered by workspace id.
func (r *WorkspaceRepository) ListByTenant(ctx context.Context, tenantID string) ([]Workspace, error) {
	query := `
		SELECT tenant_id, workspace_id, name, archived, created_at
		FROM workspace_read_models
		WHERE tenant_id = $1
		ORDER BY workspace_id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list workspace read models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Workspace
	for rows.Next() {
		var ws Workspace
		var createdAt string
		if err := rows.Scan(&ws.TenantID, &ws.WorkspaceID, &ws.Name, &ws.Archived, &createdAt); err != nil {
			return nil, err
		}
		ws.CreatedAt = eventstore.ParseTime(createdAt)
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
