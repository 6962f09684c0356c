package eventstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
	"github.com/Mindburn-Labs/chronicle/pkg/schema"
)

// Failure paths that are awkward to reach through a real database are
// exercised with sqlmock.

func newMockStore(t *testing.T) (*eventstore.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	return eventstore.NewSQLStore(db, registry, eventstore.DialectPostgres, nil), mock
}

func mockEvent() eventstore.EventRecord {
	return eventstore.EventRecord{
		EventType:   "widget.created",
		TypeVersion: 1,
		OccurredAt:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Payload:     json.RawMessage(`{}`),
	}
}

func TestSQLStore_AppendLockFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streams").WillReturnError(boom)
	mock.ExpectRollback()

	err := store.Append(context.Background(), appendReq("w-1", 0, mockEvent()))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_AppendConflictRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streams").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectRollback()

	err := store.Append(context.Background(), appendReq("w-1", 2, mockEvent()))
	require.ErrorIs(t, err, eventstore.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_AppendRollbackFailureDoesNotMaskCause(t *testing.T) {
	store, mock := newMockStore(t)

	boom := errors.New("insert exploded")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streams").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(0)))
	mock.ExpectExec("UPDATE streams SET version").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").WillReturnError(boom)
	mock.ExpectRollback().WillReturnError(errors.New("rollback also exploded"))

	err := store.Append(context.Background(), appendReq("w-1", 0, mockEvent()))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_AppendCommitFailure(t *testing.T) {
	store, mock := newMockStore(t)

	boom := errors.New("commit failed")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streams").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(0)))
	mock.ExpectExec("UPDATE streams SET version").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(boom)

	err := store.Append(context.Background(), appendReq("w-1", 0, mockEvent()))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresDialectLocksRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streams .* FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(0)))
	mock.ExpectExec("UPDATE streams SET version").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Append(context.Background(), appendReq("w-1", 0, mockEvent()))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
