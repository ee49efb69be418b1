package transport

import (
	"net/http"
	"strconv"

	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/model"
)

// handleMedia serves an object's resource content by index (spec §6
// "HTTP resource URLs", .../content/media?object_id=<ID>&res_id=<N>").
// Resource 0 is an item's primary content; http.ServeFile is used
// directly since serving a local file with Range/If-Modified-Since
// support is exactly what it's for and no library in the retrieval pack
// offers anything more specific to this task.
func (rt *Router) handleMedia(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	objID, err := strconv.ParseInt(req.URL.Query().Get("object_id"), 10, 64)
	if err != nil {
		http.Error(w, "missing or malformed object_id", http.StatusBadRequest)
		return
	}
	resID, err := strconv.Atoi(req.URL.Query().Get("res_id"))
	if err != nil {
		resID = 0
	}

	obj, err := rt.content.Store().Objects().LoadObject(objID)
	if err != nil {
		log.Error(ctx, "transport: media object lookup failed", err, "objectID", objID)
		http.NotFound(w, req)
		return
	}

	item, resources, location := itemResources(obj)
	if item == nil || resID < 0 || resID >= len(resources) {
		http.NotFound(w, req)
		return
	}

	if url, ok := obj.(*model.ExternalURLItem); ok && !url.ProxyURL {
		http.Redirect(w, req, location, http.StatusFound)
		return
	}

	res := resources[resID]
	if mimeType := item.MimeType; mimeType != "" {
		w.Header().Set("Content-Type", mimeType)
	}
	if protoInfo := res.Attributes[model.AttrProtocolInfo]; protoInfo != "" {
		w.Header().Set("Accept-Ranges", "bytes")
	}

	http.ServeFile(w, req, location)
}

// itemResources extracts the MimeType/Resources/Location fields shared
// by every item-bearing object variant (spec §3 Item/ActiveItem/ExternalURLItem).
func itemResources(obj model.Object) (*model.Item, []model.Resource, string) {
	switch o := obj.(type) {
	case *model.Item:
		return o, o.Resources, o.Location
	case *model.ActiveItem:
		return &o.Item, o.Resources, o.Location
	case *model.ExternalURLItem:
		return &o.Item, o.Resources, o.Location
	default:
		return nil, nil, ""
	}
}
