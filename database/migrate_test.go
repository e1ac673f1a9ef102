package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestWaitForDB_Ready(t *testing.T) {
	db, mock := newPingDB(t)
	mock.ExpectPing()

	require.NoError(t, waitForDB(context.Background(), db, 3, time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDB_RetriesUntilReady(t *testing.T) {
	db, mock := newPingDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, waitForDB(context.Background(), db, 3, time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDB_GivesUp(t *testing.T) {
	db, mock := newPingDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := waitForDB(context.Background(), db, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDB_ContextCanceled(t *testing.T) {
	db, mock := newPingDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForDB(ctx, db, 5, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMigrate_UsesEmbeddedDirectory(t *testing.T) {
	db, _ := newPingDB(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)
}

func TestMigrate_PropagatesError(t *testing.T) {
	db, _ := newPingDB(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migrations: boom")
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_create_api_tokens.sql", entries[0].Name())
	assert.Equal(t, "00002_create_users.sql", entries[1].Name())
}
