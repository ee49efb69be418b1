package content

import (
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/opencds/mediaserver/internal/model"
)

// MetadataExtractor is the narrow interface the add-file algorithm
// dispatches to based on content type (spec §4.5 step 4, §1 Non-goals:
// "metadata extractors for individual formats" are out of scope beyond
// this boundary). This package supplies the default audio implementation;
// image/video extractors are not wired (no teacher/pack library covers
// EXIF/MP4 extraction).
type MetadataExtractor interface {
	Extract(path string) (model.Dict, error)
}

// TagExtractor reads ID3/FLAC/OGG tags via dhowden/tag, covering the
// MP3/OGG/FLAC branch of the add-file dispatch table.
type TagExtractor struct{}

func (TagExtractor) Extract(path string) (model.Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Not every audio file carries a tag block; treat as empty
		// metadata rather than failing the import.
		return model.Dict{}, nil
	}

	d := model.Dict{}
	if m.Title() != "" {
		d[model.PropTitle] = m.Title()
	}
	if m.Artist() != "" {
		d[model.PropArtist] = m.Artist()
	}
	if m.Album() != "" {
		d[model.PropAlbum] = m.Album()
	}
	if m.Genre() != "" {
		d[model.PropGenre] = m.Genre()
	}
	if y := m.Year(); y != 0 {
		d[model.PropDate] = strconv.Itoa(y)
	}
	if track, _ := m.Track(); track != 0 {
		d[model.PropOriginalTrackNum] = strconv.Itoa(track)
	}
	return d, nil
}

// extractorFor dispatches on MIME type per spec §4.5 step 4's
// "MP3/OGG/FLAC→tag reader" branch; other content types have no
// registered extractor and import with empty metadata.
func extractorFor(mimeType string) MetadataExtractor {
	if strings.HasPrefix(mimeType, "audio/") {
		return TagExtractor{}
	}
	return nil
}
