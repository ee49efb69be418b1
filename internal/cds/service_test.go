package cds

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/update"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(context.Background()))
	t.Cleanup(func() { store.Close() })

	updates := update.New(store.Objects(), func(context.Context, []update.Pair) {})
	cfg := config.Default()
	return New(cfg, store, updates), store
}

func addTestItem(t *testing.T, store *storage.Store, parent int64, title string) int64 {
	t.Helper()
	f := filepath.Join(t.TempDir(), "x.mp3")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	item := model.NewItem()
	item.ParentID = parent
	item.Title = title
	item.Class = "object.item.audioItem.musicTrack"
	item.MimeType = "audio/mpeg"
	item.Location = f
	item.Resources = []model.Resource{model.NewResource(model.HandlerLibrary)}
	id, _, err := store.Objects().AddObject(item)
	require.NoError(t, err)
	return id
}

func TestBrowseDirectChildrenRendersDIDL(t *testing.T) {
	svc, store := newTestService(t)
	addTestItem(t, store, model.IDFilesystem, "Track One")

	res, err := svc.Browse(context.Background(), BrowseRequest{
		ObjectID:   model.IDFilesystem,
		BrowseFlag: "BrowseDirectChildren",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.NumberReturned)
	require.Contains(t, res.Result, "Track One")
	require.Contains(t, res.Result, "DIDL-Lite")
}

func TestBrowseMetadataReturnsSingleRow(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Browse(context.Background(), BrowseRequest{
		ObjectID:   model.IDRoot,
		BrowseFlag: "BrowseMetadata",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.NumberReturned)
	require.Equal(t, 1, res.TotalMatches)
}

func TestBrowseUnknownObjectIDReturnsNoSuchObject(t *testing.T) {
	svc, _ := newTestService(t)

	for _, flag := range []string{"BrowseDirectChildren", "BrowseMetadata"} {
		_, err := svc.Browse(context.Background(), BrowseRequest{
			ObjectID:   999999,
			BrowseFlag: flag,
		})
		require.Error(t, err)
		var cdsErr *model.CDSError
		require.ErrorAs(t, err, &cdsErr)
		require.Equal(t, model.ErrCodeNoSuchObject, cdsErr.Code)
	}
}

func TestGetSearchAndSortCapabilitiesAreEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	require.Equal(t, "", svc.GetSearchCapabilities())
	require.Equal(t, "", svc.GetSortCapabilities())
}

func TestSearchIsAStub(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Search(context.Background(), BrowseRequest{})
	require.Error(t, err)
}

func TestTruncateAddsEllipsis(t *testing.T) {
	require.Equal(t, "hello", truncate("hello", 0))
	require.Equal(t, "he...", truncate("hello world", 5))
	require.Equal(t, "hello world", truncate("hello world", 100))
}
