package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/storage"
)

// drain runs every queued task (including ones spawned while draining)
// to completion, synchronously.
func drain(ctx context.Context, m *Manager) {
	for runOne(ctx, m) {
	}
}

func TestRescanDirectoryPersistsWatermarkAndSkipsUnchangedFiles(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	containerID := mustContainer(t, m, dir)
	_, err := m.store.Autoscan().UpdateAutoscanDirectory(storage.AutoscanEntry{
		StorageID: containerID,
		Location:  dir,
		Mode:      config.ScanModeTimed,
		Level:     config.ScanLevelFull,
	})
	require.NoError(t, err)

	m.RescanDirectory(dir, containerID, config.ScanLevelFull, false, PriorityLow)
	drain(ctx, m)

	obj, err := m.store.Objects().FindObjectByTitle("track.mp3", containerID)
	require.NoError(t, err)
	require.NotNil(t, obj)
	firstID := obj.Head().ID

	entry, err := m.store.Autoscan().GetAutoscanEntry(containerID)
	require.NoError(t, err)
	require.False(t, entry.LastModified.IsZero())

	// A second cycle against the same, untouched file must not remove and
	// re-import it.
	m.RescanDirectory(dir, containerID, config.ScanLevelFull, false, PriorityLow)
	drain(ctx, m)

	obj, err = m.store.Objects().FindObjectByTitle("track.mp3", containerID)
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, firstID, obj.Head().ID)
}

func TestRescanDirectoryRemovesVanishedFile(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	f := filepath.Join(dir, "gone.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))

	containerID := mustContainer(t, m, dir)
	id, err := m.addSingleFile(ctx, f)
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, os.Remove(f))

	m.RescanDirectory(dir, containerID, config.ScanLevelBasic, false, PriorityLow)
	drain(ctx, m)

	_, err = m.store.Objects().LoadObject(id)
	require.Error(t, err)
}
