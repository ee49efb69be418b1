package storage

import (
	"database/sql"
	"fmt"

	"github.com/opencds/mediaserver/internal/model"
)

// row is the flat representation of one mt_cds_object record: every
// variant of the tagged union marshals into (and out of) this single
// struct, selected columns per spec §4.2 Schema.
type row struct {
	ID          int64          `db:"id" structs:"id"`
	RefID       sql.NullInt64  `db:"ref_id" structs:"ref_id"`
	ParentID    int64          `db:"parent_id" structs:"parent_id"`
	ObjectType  uint32         `db:"object_type" structs:"object_type"`
	Flags       uint32         `db:"flags" structs:"flags"`
	Restricted  bool           `db:"restricted" structs:"restricted"`
	Virtual     bool           `db:"virtual" structs:"virtual"`
	Title       string         `db:"dc_title" structs:"dc_title"`
	Description string         `db:"dc_description" structs:"dc_description"`
	Class       string         `db:"upnp_class" structs:"upnp_class"`
	Location    []byte         `db:"location" structs:"location"`
	MimeType    string         `db:"mime_type" structs:"mime_type"`
	Action      string         `db:"action" structs:"action"`
	State       string         `db:"state" structs:"state"`
	UpdateID    uint32         `db:"update_id" structs:"update_id"`
	Searchable  bool           `db:"searchable" structs:"searchable"`
	Metadata    string         `db:"metadata" structs:"metadata"`
	AuxData     string         `db:"auxdata" structs:"auxdata"`
	Resources   string         `db:"resources" structs:"resources"`
	ServiceID   sql.NullString `db:"service_id" structs:"service_id"`
}

// fromObject flattens o into a row ready for put().
func fromObject(o model.Object) *row {
	h := o.Head()
	r := &row{
		ID:         h.ID,
		ParentID:   h.ParentID,
		ObjectType: uint32(o.Type()),
		Flags:      uint32(h.Flags),
		Restricted: h.Restricted,
		Virtual:    h.Virtual,
		Title:      h.Title,
		Class:      h.Class,
		Location:   []byte(h.Location),
		Metadata:   h.Metadata.Encode(),
		AuxData:    h.AuxData.Encode(),
	}
	if h.RefID != nil {
		r.RefID = sql.NullInt64{Int64: *h.RefID, Valid: true}
	}
	r.Description = h.Metadata[model.PropDescription]

	switch v := o.(type) {
	case *model.Container:
		r.Searchable = v.Searchable
		r.UpdateID = v.UpdateID
	case *model.ActiveItem:
		r.MimeType = v.MimeType
		r.Action = v.Action
		r.State = v.State
		r.Resources = model.EncodeResources(v.Resources)
		if v.ServiceID != "" {
			r.ServiceID = sql.NullString{String: v.ServiceID, Valid: true}
		}
	case *model.ExternalURLItem:
		r.MimeType = v.MimeType
		r.Resources = model.EncodeResources(v.Resources)
		if v.ProxyURL {
			r.Flags |= uint32(model.FlagProxyURL)
		}
		if v.ServiceID != "" {
			r.ServiceID = sql.NullString{String: v.ServiceID, Valid: true}
		}
	case *model.Item:
		r.MimeType = v.MimeType
		r.Resources = model.EncodeResources(v.Resources)
		if v.ServiceID != "" {
			r.ServiceID = sql.NullString{String: v.ServiceID, Valid: true}
		}
	}
	return r
}

// toObject reconstructs the tagged-union variant selected by r.ObjectType.
func (r *row) toObject() (model.Object, error) {
	t := model.ObjectType(r.ObjectType)
	h := model.Header{
		ID:         r.ID,
		ParentID:   r.ParentID,
		Restricted: r.Restricted,
		Title:      r.Title,
		Class:      r.Class,
		Location:   string(r.Location),
		Virtual:    r.Virtual,
		Flags:      model.Flags(r.Flags),
		Metadata:   model.DecodeDict(r.Metadata),
		AuxData:    model.DecodeDict(r.AuxData),
	}
	if r.RefID.Valid {
		ref := r.RefID.Int64
		h.RefID = &ref
	}
	if r.Description != "" {
		if h.Metadata == nil {
			h.Metadata = model.Dict{}
		}
		h.Metadata[model.PropDescription] = r.Description
	}

	switch {
	case t.IsContainer():
		c := model.NewContainer()
		c.Header = h
		c.Searchable = r.Searchable
		c.UpdateID = r.UpdateID
		return c, nil
	case t == model.TypeItem|model.TypeActiveItem:
		a := model.NewActiveItem()
		a.Header = h
		a.MimeType = r.MimeType
		a.Action = r.Action
		a.State = r.State
		a.Resources = model.DecodeResources(r.Resources)
		if r.ServiceID.Valid {
			a.ServiceID = r.ServiceID.String
		}
		return a, nil
	case t == model.TypeItem|model.TypeExternalURL:
		e := model.NewExternalURLItem()
		e.Header = h
		e.MimeType = r.MimeType
		e.Resources = model.DecodeResources(r.Resources)
		e.ProxyURL = h.Flags&model.FlagProxyURL != 0
		if r.ServiceID.Valid {
			e.ServiceID = r.ServiceID.String
		}
		return e, nil
	case t.IsItem():
		i := model.NewItem()
		i.Header = h
		i.MimeType = r.MimeType
		i.Resources = model.DecodeResources(r.Resources)
		if r.ServiceID.Valid {
			i.ServiceID = r.ServiceID.String
		}
		return i, nil
	default:
		return nil, fmt.Errorf("unknown object_type %d for row %d", r.ObjectType, r.ID)
	}
}
