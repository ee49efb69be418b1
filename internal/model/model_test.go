package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictEncodeDecodeRoundTrip(t *testing.T) {
	d := Dict{PropTitle: "Foo & Bar", PropArtist: "A/B=C"}
	got := DecodeDict(d.Encode())
	assert.True(t, d.Equal(got))
}

func TestDictEncodeDecodeRoundTripWithTilde(t *testing.T) {
	d := Dict{PropTitle: "A~B~C", PropArtist: "~leading"}
	got := DecodeDict(d.Encode())
	assert.True(t, d.Equal(got))
}

func TestResourceEncodeDecodeRoundTrip(t *testing.T) {
	r := NewResource(HandlerLibrary)
	r.Attributes[AttrProtocolInfo] = "http-get:*:audio/mpeg:*"
	r.Attributes[AttrSize] = "12345"
	r.Parameters["transcode"] = "no"

	got := DecodeResource(r.Encode())
	assert.True(t, r.Equal(got))
}

// A '~' in an attribute value must not be mistaken for Resource.Encode's
// own '~' field delimiter.
func TestResourceEncodeDecodeRoundTripWithTildeInAttribute(t *testing.T) {
	r := NewResource(HandlerLibrary)
	r.Attributes[AttrProtocolInfo] = "http-get:*:audio/mpeg:*"
	r.Attributes["title"] = "A~B~C"
	r.Parameters["note"] = "~"

	got := DecodeResource(r.Encode())
	assert.True(t, r.Equal(got))
}

func TestResourcesEncodeDecodeRoundTrip(t *testing.T) {
	rs := []Resource{
		NewResource(HandlerLibrary),
		NewResource(HandlerTranscode),
	}
	rs[0].Attributes[AttrProtocolInfo] = "http-get:*:audio/mpeg:*"
	rs[1].Attributes[AttrProtocolInfo] = "http-get:*:audio/L16:*"

	got := DecodeResources(EncodeResources(rs))
	require.Len(t, got, 2)
	assert.True(t, resourcesEqual(rs, got))
}

func TestItemValidateRequiresExistingLocation(t *testing.T) {
	i := NewItem()
	i.Header.Title = "song"
	i.Header.Class = "object.item.audioItem.musicTrack"
	i.MimeType = "audio/mpeg"
	i.Header.Location = "/no/such/path/definitely"

	err := i.Validate()
	require.Error(t, err)
	var invalidErr *ErrInvalidObject
	assert.ErrorAs(t, err, &invalidErr)
}

func TestItemValidateSkipsLocationCheckWhenVirtual(t *testing.T) {
	i := NewItem()
	i.Header.Title = "song"
	i.Header.Class = "object.item.audioItem.musicTrack"
	i.MimeType = "audio/mpeg"
	i.Header.Virtual = true

	assert.NoError(t, i.Validate())
}

func TestContainerCopyToPreservesTargetIDWhenSourceLacksOne(t *testing.T) {
	src := NewContainer()
	src.Header.Title = "Album"
	src.Header.Class = "object.container.album.musicAlbum"

	dst := NewContainer()
	dst.Header.ID = 42
	dst.Header.ParentID = 7

	src.CopyTo(dst)
	assert.Equal(t, int64(42), dst.Header.ID)
	assert.Equal(t, int64(7), dst.Header.ParentID)
	assert.Equal(t, "Album", dst.Header.Title)
}

func TestEqualsComparesVisibleFieldsOnly(t *testing.T) {
	a := NewItem()
	a.Header.ID = 1
	a.Header.ParentID = 1
	a.Header.Title = "T"
	a.Header.Class = "object.item.audioItem.musicTrack"
	a.MimeType = "audio/mpeg"
	a.Header.Location = "/m/a.mp3"

	b := a.Clone().(*Item)
	b.Header.Location = "/m/b.mp3" // internal-only field

	assert.True(t, a.Equals(b, false))
	assert.False(t, a.Equals(b, true))
}

func TestActiveItemValidateRequiresExecutableAction(t *testing.T) {
	a := NewActiveItem()
	a.Header.Title = "script"
	a.Header.Class = "object.item"
	a.MimeType = "text/plain"
	a.Action = "/no/such/executable"

	require.Error(t, a.Validate())
}

func TestExternalURLItemValidateSkipsLocalPathCheck(t *testing.T) {
	e := NewExternalURLItem()
	e.Header.Title = "Stream"
	e.Header.Class = "object.item.audioItem"
	e.MimeType = "audio/mpeg"
	e.Header.Location = "http://example.com/stream.mp3"

	assert.NoError(t, e.Validate())
}

func TestObjectTypeBitmask(t *testing.T) {
	assert.True(t, TypeContainer.IsContainer())
	assert.False(t, TypeContainer.IsItem())
	assert.True(t, (TypeItem | TypeActiveItem).IsItem())
}
