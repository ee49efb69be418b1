package cds

import (
	"context"
	"encoding/xml"
	"strconv"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/update"
)

const (
	classMusicAlbum       = "object.container.album.musicAlbum"
	classPlaylistContainer = "object.container.playlistContainer"
)

// BrowseRequest is the decoded form of a ContentDirectory Browse SOAP
// action's arguments (spec §4.3).
type BrowseRequest struct {
	ObjectID       int64
	BrowseFlag     string // "BrowseMetadata" or "BrowseDirectChildren"
	StartingIndex  int
	RequestedCount int
	SortCriteria   string
}

// BrowseResult is the Browse action's return value, ready to be
// embedded in a SOAP response (spec §4.3 Response carries Result,
// NumberReturned, TotalMatches, UpdateID).
type BrowseResult struct {
	Result         string
	NumberReturned int
	TotalMatches   int
	UpdateID       uint32
}

// Service implements the ContentDirectory action surface over a
// storage.Store and an update.Manager (spec §4.3, §6 CDS action
// surface).
type Service struct {
	cfg     *config.Config
	store   *storage.Store
	updates *update.Manager
}

// New returns a Service wired to store and updates.
func New(cfg *config.Config, store *storage.Store, updates *update.Manager) *Service {
	return &Service{cfg: cfg, store: store, updates: updates}
}

// Browse implements the Browse action (spec §4.3): decode object id,
// compute default flags (adding TrackSort for musicAlbum/playlistContainer
// classes and HideFsRoot when configured), call the storage layer, and
// render the result as DIDL-Lite.
func (s *Service) Browse(ctx context.Context, req BrowseRequest) (*BrowseResult, error) {
	var flag storage.BrowseFlag
	switch req.BrowseFlag {
	case "BrowseMetadata":
		flag = storage.BrowseMetadata
	case "BrowseDirectChildren":
		flag = storage.BrowseDirectChildren
	default:
		return nil, model.InvalidArgs("unknown BrowseFlag %q", req.BrowseFlag)
	}

	// Default flags are Items|Containers|ExactChildCount (spec §4.3): no
	// type filter at the storage layer, so both "only" bits stay false.
	param := storage.BrowseParam{
		ObjectID:        req.ObjectID,
		Flag:            flag,
		StartIndex:      req.StartingIndex,
		RequestedCount:  req.RequestedCount,
		ExactChildCount: true,
		HideFsRoot:      s.cfg.Server.Protocol.HideFsRoot,
	}

	if parent, err := s.store.Objects().LoadObject(req.ObjectID); err == nil {
		if c, ok := parent.(*model.Container); ok {
			param.TrackSort = isTrackSortClass(c.Class)
		}
	}

	objs, total, err := s.store.Objects().Browse(param)
	if err != nil {
		return nil, err
	}
	if param.HideFsRoot {
		objs = filterFsRoot(objs)
	}

	didl := newDIDL()
	for _, obj := range objs {
		s.renderInto(&didl, obj)
	}

	xmlBytes, err := xml.Marshal(didl)
	if err != nil {
		return nil, model.ActionFailed(err)
	}

	return &BrowseResult{
		Result:         string(xmlBytes),
		NumberReturned: len(didl.Containers) + len(didl.Items),
		TotalMatches:   total,
		UpdateID:       s.updates.SystemUpdateID(),
	}, nil
}

// GetSearchCapabilities always returns an empty string: advanced search
// is not supported (spec §4.3).
func (s *Service) GetSearchCapabilities() string { return "" }

// GetSortCapabilities always returns an empty string (spec §4.3).
func (s *Service) GetSortCapabilities() string { return "" }

// GetSystemUpdateID returns the current SystemUpdateID (spec §4.3).
func (s *Service) GetSystemUpdateID() uint32 { return s.updates.SystemUpdateID() }

// Search is a stub: the action surface advertises it but the storage
// layer implements no query engine beyond Browse (spec §6 "Search
// (stub)", §1 Non-goals advanced search).
func (s *Service) Search(ctx context.Context, req BrowseRequest) (*BrowseResult, error) {
	return nil, model.InvalidArgs("Search is not supported")
}

func isTrackSortClass(class string) bool {
	return class == classMusicAlbum || class == classPlaylistContainer
}

func filterFsRoot(objs []model.Object) []model.Object {
	out := objs[:0]
	for _, o := range objs {
		if o.Head().ID == model.IDFilesystem {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *Service) renderInto(didl *didlLite, obj model.Object) {
	limit := s.cfg.Server.Protocol.StringLimit
	marker := s.cfg.Server.Protocol.PlayedMarker
	head := obj.Head()
	title := truncate(head.Title, limit)
	if marker != "" && head.Flags&model.FlagPlayed != 0 {
		title = marker + title
	}
	parentID := strconv.FormatInt(head.ParentID, 10)
	id := strconv.FormatInt(head.ID, 10)

	switch o := obj.(type) {
	case *model.Container:
		didl.Containers = append(didl.Containers, didlContainer{
			ID:         id,
			ParentID:   parentID,
			Restricted: boolAttr(head.Restricted),
			Searchable: boolAttr(o.Searchable),
			ChildCount: o.ChildCount,
			Title:      title,
			Class:      head.Class,
		})
	case *model.ActiveItem:
		didl.Items = append(didl.Items, s.renderItem(&o.Item, id, parentID, title, head))
	case *model.ExternalURLItem:
		didl.Items = append(didl.Items, s.renderItem(&o.Item, id, parentID, title, head))
	case *model.Item:
		didl.Items = append(didl.Items, s.renderItem(o, id, parentID, title, head))
	}
}

func (s *Service) renderItem(item *model.Item, id, parentID, title string, head *model.Header) didlItem {
	di := didlItem{
		ID:          id,
		ParentID:    parentID,
		Restricted:  boolAttr(head.Restricted),
		Title:       title,
		Description: truncate(head.Metadata[model.PropDescription], s.cfg.Server.Protocol.StringLimit),
		Artist:      head.Metadata[model.PropArtist],
		Creator:     head.Metadata[model.PropArtist],
		Album:       head.Metadata[model.PropAlbum],
		Genre:       head.Metadata[model.PropGenre],
		Date:        head.Metadata[model.PropDate],
		Class:       head.Class,
	}
	if head.RefID != nil {
		di.RefID = strconv.FormatInt(*head.RefID, 10)
	}
	if n, err := strconv.Atoi(head.Metadata[model.PropOriginalTrackNum]); err == nil {
		di.TrackNumber = n
	}
	for n, res := range item.Resources {
		di.Resources = append(di.Resources, didlResource(head.ID, n, res))
	}
	return di
}

func didlResource(objectID int64, n int, res model.Resource) didlRes {
	protocolInfo := res.Attributes[model.AttrProtocolInfo]
	if protocolInfo == "" {
		protocolInfo = "http-get:*:application/octet-stream:*"
	}
	return didlRes{
		ProtocolInfo: protocolInfo,
		Size:         res.Attributes[model.AttrSize],
		Duration:     res.Attributes[model.AttrDuration],
		Bitrate:      res.Attributes[model.AttrBitrate],
		SampleFreq:   res.Attributes[model.AttrSampleFrequency],
		Channels:     res.Attributes[model.AttrNrAudioChannels],
		Resolution:   res.Attributes[model.AttrResolution],
		URL:          resourceURL(objectID, n),
	}
}

// resourceURL builds the HTTP URL a control point fetches a resource
// through (spec §4.3 "Resources carry URLs of the form
// .../content/media?object_id=<ID>&res_id=<N>").
func resourceURL(objectID int64, resID int) string {
	return "/content/media?object_id=" + strconv.FormatInt(objectID, 10) + "&res_id=" + strconv.Itoa(resID)
}
