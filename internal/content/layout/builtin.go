package layout

import (
	"strings"

	"github.com/opencds/mediaserver/internal/model"
)

const unknown = "Unknown"

// Builtin is the fallback layout every install gets when
// /import/scripting/virtual-layout is "builtin": it places audio
// tracks under By-Artist, By-Album and By-Genre virtual trees (spec §8
// S2).
type Builtin struct{}

// NewBuiltin returns the builtin fallback layout engine.
func NewBuiltin() *Builtin { return &Builtin{} }

func (b *Builtin) Close() error { return nil }

func (b *Builtin) Process(obj *model.Item) ([]VirtualObject, error) {
	if !strings.HasPrefix(obj.MimeType, "audio/") {
		return nil, nil
	}

	artist := firstNonEmpty(obj.Header.Metadata[model.PropArtist], unknown)
	album := firstNonEmpty(obj.Header.Metadata[model.PropAlbum], unknown)
	genre := firstNonEmpty(obj.Header.Metadata[model.PropGenre], unknown)
	title := obj.Header.Title

	return []VirtualObject{
		{
			ContainerPath:  "/Audio/Artists/" + escape(artist) + "/all",
			ContainerClass: "object.container.person.musicArtist",
			Title:          title,
			Class:          obj.Header.Class,
		},
		{
			ContainerPath:  "/Audio/Albums/" + escape(album),
			ContainerClass: "object.container.album.musicAlbum",
			Title:          title,
			Class:          obj.Header.Class,
		},
		{
			ContainerPath:  "/Audio/Genres/" + escape(genre),
			ContainerClass: "object.container.genre.musicGenre",
			Title:          title,
			Class:          obj.Header.Class,
		},
	}, nil
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// escape protects a path component value from being misread as an
// additional path separator by the container-chain builder.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `/`, `\/`)
	return s
}
