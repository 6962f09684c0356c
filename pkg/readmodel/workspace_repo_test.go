package readmodel_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/chronicle/pkg/domain/workspace"
	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
	"github.com/Mindburn-Labs/chronicle/pkg/projection"
	"github.com/Mindburn-Labs/chronicle/pkg/readmodel"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "chronicle.db") +
		"?_txlock=immediate&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, eventstore.Migrate(context.Background(), db))
	return db
}

func TestWorkspaceRepository_CRUD(t *testing.T) {
	repo := readmodel.NewWorkspaceRepository(newDB(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.FindByID(ctx, "tenant-a", "w-1")
	require.ErrorIs(t, err, readmodel.ErrNotFound)

	ws := readmodel.Workspace{TenantID: "tenant-a", WorkspaceID: "w-1", Name: "alpha", CreatedAt: at}
	require.NoError(t, repo.Upsert(ctx, ws))

	got, err := repo.FindByID(ctx, "tenant-a", "w-1")
	require.NoError(t, err)
	assert.Equal(t, ws, got)

	// Replayed create is harmless.
	require.NoError(t, repo.Upsert(ctx, ws))

	require.NoError(t, repo.Rename(ctx, "tenant-a", "w-1", "beta"))
	got, err = repo.FindByID(ctx, "tenant-a", "w-1")
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Name)

	require.NoError(t, repo.SetArchived(ctx, "tenant-a", "w-1"))
	got, err = repo.FindByID(ctx, "tenant-a", "w-1")
	require.NoError(t, err)
	assert.True(t, got.Archived)

	require.ErrorIs(t, repo.Rename(ctx, "tenant-a", "missing", "x"), readmodel.ErrNotFound)
	require.ErrorIs(t, repo.SetArchived(ctx, "tenant-a", "missing"), readmodel.ErrNotFound)

	list, err := repo.ListByTenant(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repo.ListByTenant(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, list)
}

// End to end: commands append to the log, the worker replays it, and the
// read model converges.
func TestWorkspaceReadModel_ConvergesFromLog(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	registry, err := workspace.Registry()
	require.NoError(t, err)
	store := eventstore.NewSQLStore(db, registry, eventstore.DialectSQLite, nil)
	svc := workspace.NewService(store)
	repo := readmodel.NewWorkspaceRepository(db)

	cmd := workspace.Command{
		TenantID:      "tenant-a",
		WorkspaceID:   "w-1",
		RequestID:     "req-1",
		CorrelationID: "corr-1",
		Actor:         eventstore.Actor{Type: "user", ID: "u-1"},
		OccurredAt:    at,
	}
	require.NoError(t, svc.Create(ctx, cmd, "alpha", "u-1"))
	cmd.OccurredAt = at.Add(time.Minute)
	require.NoError(t, svc.Rename(ctx, cmd, "beta"))
	cmd.OccurredAt = at.Add(time.Hour)
	require.NoError(t, svc.Archive(ctx, cmd))

	worker := projection.NewWorker(
		store, registry,
		projection.NewSQLCheckpointStore(db),
		projection.NewSQLDeadLetterStore(db),
		readmodel.Handlers(repo, nil),
		projection.Config{}, nil, nil,
	)

	// Checkpoints are per event type, so the archive projection can run
	// before the create projection has inserted the row; it dead-letters,
	// stays put, and converges on the following pass.
	require.NoError(t, worker.RunPass(ctx))
	require.NoError(t, worker.RunPass(ctx))

	got, err := repo.FindByID(ctx, "tenant-a", "w-1")
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Name)
	assert.True(t, got.Archived)
	assert.Equal(t, at, got.CreatedAt)

	// Replaying the whole log leaves the read model unchanged.
	require.NoError(t, projection.NewSQLCheckpointStore(db).Reset(ctx, "tenant-a"))
	require.NoError(t, worker.RunPass(ctx))

	again, err := repo.FindByID(ctx, "tenant-a", "w-1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}
