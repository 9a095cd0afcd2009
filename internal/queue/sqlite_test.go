package queue

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "delayflow.db")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=rwc", path))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(db))
	return db
}

func TestSQLiteRepoEmpty(t *testing.T) {
	repo := NewSQLiteRepo(openTestDB(t))

	tasks, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSQLiteRepoSaveReplacesCollection(t *testing.T) {
	repo := NewSQLiteRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTasks()))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTasks(), got)

	require.NoError(t, repo.Save(ctx, sampleTasks()[1:]))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestSQLiteRepoZoneNaiveRows(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO tasks (position,name,created_at,scheduled_for,status,data)
VALUES (0,'legacy','2024-03-01 12:00:00','2024-03-01 22:00:00','pending','{}')`)
	require.NoError(t, err)

	got, err := NewSQLiteRepo(db).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 22, got[0].ScheduledFor.Hour())
	assert.Equal(t, "UTC", got[0].ScheduledFor.Location().String())
}

func TestSQLiteRepoMalformedRow(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO tasks (position,name,created_at,scheduled_for,status,data)
VALUES (0,'bad','soon','later','pending','{}')`)
	require.NoError(t, err)

	_, err = NewSQLiteRepo(db).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}
