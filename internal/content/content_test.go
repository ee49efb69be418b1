package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/update"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(context.Background()))
	t.Cleanup(func() { store.Close() })

	updates := update.New(store.Objects(), func(context.Context, []update.Pair) {})

	cfg := config.Default()
	cfg.Import.Mappings.ExtensionMimetype = []config.Mapping{{From: "mp3", To: "audio/mpeg"}}
	cfg.Import.Mappings.MimetypeUpnpClass = []config.Mapping{{From: "audio/*", To: "object.item.audioItem.musicTrack"}}

	return New(cfg, store, updates, nil)
}

// runOne dequeues and synchronously runs the next task, bypassing the
// background worker loop so tests stay deterministic.
func runOne(ctx context.Context, m *Manager) bool {
	t := m.dequeue()
	if t == nil {
		return false
	}
	if t.isValid() {
		t.run(ctx)
	}
	return true
}

func TestAddSingleFileImportsAndClassifies(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	id, err := m.addSingleFile(ctx, f)
	require.NoError(t, err)
	require.NotZero(t, id)

	obj, err := m.store.Objects().LoadObject(id)
	require.NoError(t, err)
	require.Equal(t, "object.item.audioItem.musicTrack", obj.Head().Class)
}

func TestAddSingleFileIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	id1, err := m.addSingleFile(ctx, f)
	require.NoError(t, err)
	id2, err := m.addSingleFile(ctx, f)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestAddFileQueuesAndRunsViaTaskQueue(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	m.AddFile(f, false, PriorityHigh)
	require.True(t, runOne(ctx, m))

	obj, err := m.store.Objects().FindObjectByTitle("song.mp3", mustContainer(t, m, dir))
	require.NoError(t, err)
	require.NotNil(t, obj)
}

func TestInvalidateTaskSkipsQueuedWork(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "skip.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	m.AddFile(f, false, PriorityHigh)
	m.InvalidateTask(m.q1[0].ID)
	require.True(t, runOne(ctx, m))

	obj, err := m.store.Objects().FindObjectByTitle("skip.mp3", mustContainer(t, m, dir))
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestRemoveObjectTaskDeletesRow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "gone.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))
	id, err := m.addSingleFile(ctx, f)
	require.NoError(t, err)

	m.RemoveObject(id, false, PriorityHigh)
	require.True(t, runOne(ctx, m))

	_, err = m.store.Objects().LoadObject(id)
	require.Error(t, err)
}

func mustContainer(t *testing.T, m *Manager, dir string) int64 {
	t.Helper()
	id, err := m.store.EnsurePathExistence(context.Background(), dir)
	require.NoError(t, err)
	return id
}
