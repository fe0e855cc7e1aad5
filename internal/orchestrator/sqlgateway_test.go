package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwork/tasksync/internal/auth"
	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/gateway/sqldb"
	"github.com/fieldwork/tasksync/internal/schema"
)

// TestSQLiteRemote_OfflineRoundTrip runs the engine against a real sqlite
// remote and cache: queue offline, reconnect, and check the rows landed.
func TestSQLiteRemote_OfflineRoundTrip(t *testing.T) {
	dir := t.TempDir()

	db, err := sqldb.Open(ctx, sqldb.Config{Driver: "sqlite", DSN: filepath.Join(dir, "remote.db"), AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv, err := cache.OpenSQLite(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	sessions := auth.NewSessions(kv)
	_, err = sessions.Login(ctx, "user@example.com")
	require.NoError(t, err)

	gw := gateway.NewWithBackend(db, &gateway.Config{Logger: quietLogger()})
	conn := connectivity.NewManual(connectivity.Known(false))
	engine, err := New(gw, cache.NewBridge(kv, quietLogger()), conn, sessions, &Config{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop() })

	keep := engine.CreateTask(ctx, schema.Input{Title: "Offline task", AssignedTo: "user@example.com"})
	require.True(t, keep.OK, keep.Reason)
	drop := engine.CreateTask(ctx, schema.Input{Title: "Short lived"})
	require.True(t, drop.OK, drop.Reason)
	require.True(t, engine.UpdateTask(ctx, keep.Task.ID, schema.Changes{Status: ptr(schema.StatusInProgress)}).OK)
	require.True(t, engine.DeleteTask(ctx, drop.Task.ID).OK)
	require.Equal(t, 4, engine.Snapshot().QueueLength())

	count, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	conn.SetOnline(true)
	require.NoError(t, engine.Idle(ctx))

	snap := engine.Snapshot()
	assert.Equal(t, 0, snap.QueueLength())
	assert.Equal(t, StatusIdle, snap.Status)

	count, err = db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, keep.Task.ID, rows[0].ID)
	assert.Equal(t, string(schema.StatusInProgress), rows[0].Status)

	task, found := snap.Task(keep.Task.ID)
	require.True(t, found)
	assert.Equal(t, schema.StatusInProgress, task.Status)
}
