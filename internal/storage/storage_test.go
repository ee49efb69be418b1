package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, s.Bootstrap(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func tempFile(t *testing.T) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(f, []byte("id3"), 0o644))
	return f
}

func TestAddAndLoadObject(t *testing.T) {
	s := newTestStore(t)

	item := model.NewItem()
	item.Header.ParentID = model.IDFilesystem
	item.Header.Title = "T"
	item.Header.Class = "object.item.audioItem.musicTrack"
	item.MimeType = "audio/mpeg"
	item.Header.Location = tempFile(t)
	item.Header.Metadata = model.Dict{model.PropArtist: "A"}

	id, changed, err := s.Objects().AddObject(item)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Contains(t, changed.UPnP, model.IDFilesystem)

	loaded, err := s.Objects().LoadObject(id)
	require.NoError(t, err)
	got, ok := loaded.(*model.Item)
	require.True(t, ok)
	require.Equal(t, "T", got.Header.Title)
	require.Equal(t, "A", got.Header.Metadata[model.PropArtist])
}

func TestLoadObjectNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Objects().LoadObject(99999)
	require.Error(t, err)
	var cdsErr *model.CDSError
	require.ErrorAs(t, err, &cdsErr)
	require.Equal(t, model.ErrCodeNoSuchObject, cdsErr.Code)
}

func TestBrowseDirectChildrenOrdering(t *testing.T) {
	s := newTestStore(t)
	for _, title := range []string{"Zebra", "Apple", "Mango"} {
		item := model.NewItem()
		item.Header.ParentID = model.IDFilesystem
		item.Header.Title = title
		item.Header.Class = "object.item.audioItem.musicTrack"
		item.MimeType = "audio/mpeg"
		item.Header.Location = tempFile(t)
		_, _, err := s.Objects().AddObject(item)
		require.NoError(t, err)
	}

	rows, total, err := s.Objects().Browse(BrowseParam{ObjectID: model.IDFilesystem, Flag: BrowseDirectChildren})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, "Apple", rows[0].Head().Title)
	require.Equal(t, "Mango", rows[1].Head().Title)
	require.Equal(t, "Zebra", rows[2].Head().Title)
}

func TestBrowseMetadataReturnsOneRow(t *testing.T) {
	s := newTestStore(t)
	rows, total, err := s.Objects().Browse(BrowseParam{ObjectID: model.IDFilesystem, Flag: BrowseMetadata})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, model.IDFilesystem, rows[0].Head().ID)
}

func TestAddContainerChainCreatesMissingAncestors(t *testing.T) {
	s := newTestStore(t)
	ref := model.IDFilesystem
	leaf, topmost, err := s.AddContainerChain(context.Background(), "/Audio/Artists/A", "object.container.person.musicArtist", &ref)
	require.NoError(t, err)
	require.NotZero(t, leaf)
	require.Equal(t, model.IDRoot, topmost)

	obj, err := s.Objects().LoadObject(leaf)
	require.NoError(t, err)
	c, ok := obj.(*model.Container)
	require.True(t, ok)
	require.Equal(t, "A", c.Header.Title)
	require.Equal(t, "object.container.person.musicArtist", c.Header.Class)
	require.NotNil(t, c.Header.RefID)
	require.Equal(t, ref, *c.Header.RefID)

	// Re-adding the same chain must reuse the existing containers, not
	// create duplicates.
	leaf2, _, err := s.AddContainerChain(context.Background(), "/Audio/Artists/A", "", nil)
	require.NoError(t, err)
	require.Equal(t, leaf, leaf2)
}

func TestContainerChainEscapesSlashes(t *testing.T) {
	s := newTestStore(t)
	leaf, _, err := s.AddContainerChain(context.Background(), "/AC\\/DC", "", nil)
	require.NoError(t, err)
	obj, err := s.Objects().LoadObject(leaf)
	require.NoError(t, err)
	require.Equal(t, "AC/DC", obj.Head().Title)
}

func TestRemoveObjectRecursesIntoDescendants(t *testing.T) {
	s := newTestStore(t)
	leaf, _, err := s.AddContainerChain(context.Background(), "/A/B", "", nil)
	require.NoError(t, err)

	item := model.NewItem()
	item.Header.ParentID = leaf
	item.Header.Title = "T"
	item.Header.Class = "object.item"
	item.MimeType = "audio/mpeg"
	item.Header.Virtual = true
	itemID, _, err := s.Objects().AddObject(item)
	require.NoError(t, err)

	aID, err := s.Objects().FindObjectByTitle("A", model.IDRoot)
	require.NoError(t, err)
	require.NotNil(t, aID)

	_, err = s.RemoveObject(context.Background(), aID.Head().ID, false)
	require.NoError(t, err)

	_, err = s.Objects().LoadObject(leaf)
	require.Error(t, err)
	_, err = s.Objects().LoadObject(itemID)
	require.Error(t, err)
}

func TestInternalSettingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Settings().GetInternalSetting("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Settings().StoreInternalSetting("db_version", "5"))
	v, ok, err := s.Settings().GetInternalSetting("db_version")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "5", v)
}

func TestAutoscanLastModifiedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Autoscan().UpdateAutoscanDirectory(AutoscanEntry{
		StorageID: model.IDFilesystem,
		Location:  "/music",
		Mode:      "timed",
		Level:     "full",
	})
	require.NoError(t, err)

	entry, err := s.Autoscan().GetAutoscanEntry(model.IDFilesystem)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, entry.LastModified.IsZero())

	mark := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Autoscan().UpdateLastModified(model.IDFilesystem, mark))

	entry, err = s.Autoscan().GetAutoscanEntry(model.IDFilesystem)
	require.NoError(t, err)
	require.True(t, mark.Equal(entry.LastModified))
}

func TestGetAutoscanEntryUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	entry, err := s.Autoscan().GetAutoscanEntry(99999)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestAutoscanOverlapRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Autoscan().UpdateAutoscanDirectory(AutoscanEntry{
		StorageID: model.IDFilesystem,
		Location:  "/music",
		Mode:      "timed",
		Level:     "basic",
	})
	require.NoError(t, err)

	_, err = s.Autoscan().UpdateAutoscanDirectory(AutoscanEntry{
		StorageID: model.IDFilesystem + 1,
		Location:  "/music/rock",
		Mode:      "timed",
		Level:     "basic",
	})
	require.Error(t, err)
}
