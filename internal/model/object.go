// Package model defines the ContentDirectory catalog object graph: the
// tagged union of Container, Item, ActiveItem and ExternalURLItem, their
// shared header, metadata/resource dictionaries, and the
// copy/equals/validate capability set dispatched on the variant (spec §4.1).
package model

import "fmt"

// Reserved object ids. Ids below IDFirstValid are forbidden as arguments
// to mutating storage operations (spec §3).
const (
	IDRoot        int64 = 0 // CDS_ID_ROOT
	IDFilesystem  int64 = 1 // CDS_ID_FS_ROOT, the virtual "PC Directory" root
	IDFirstValid  int64 = 2
	IDNone        int64 = -1 // parent_id of the root
)

// ObjectType is a bitmask tag identifying which row variant a persisted
// mt_cds_object row encodes (spec §3 "tagged union").
type ObjectType uint32

const (
	TypeContainer ObjectType = 1 << iota
	TypeItem
	TypeActiveItem
	TypeExternalURL
)

// IsContainer reports whether t has the container bit set.
func (t ObjectType) IsContainer() bool { return t&TypeContainer != 0 }

// IsItem reports whether t has the item bit set (true for Item,
// ActiveItem and ExternalURLItem).
func (t ObjectType) IsItem() bool { return t&TypeItem != 0 }

// Flags is the storage-level bit set carried alongside ObjectType
// (spec §4.2 mt_cds_object.flags).
type Flags uint32

const (
	FlagProxyURL Flags = 1 << iota
	FlagOnlineService
	FlagUseResourceRef
	FlagPlayed
)

// Header holds the attributes common to every catalog object variant
// (spec §3 "Common attributes"). Concrete variants embed Header.
type Header struct {
	ID         int64
	RefID      *int64 // back-reference for virtual items pointing at the physical original
	ParentID   int64
	Restricted bool
	Title      string
	Class      string // dotted upnp:class, e.g. object.container.storageFolder
	Location   string // filesystem path or URL; meaning depends on variant
	Virtual    bool
	Flags      Flags
	Metadata   Dict
	AuxData    Dict
}

// Object is the capability set every catalog variant implements:
// copy/equals/validate/serialize dispatched on the tag (spec §4.1, §9).
type Object interface {
	// Head returns the shared header so storage/CDS code can read/write
	// the common attributes without a type switch.
	Head() *Header
	// Type reports which variant this object is.
	Type() ObjectType
	// Clone returns a deep copy (metadata/auxdata/resources are
	// independently owned by the result).
	Clone() Object
	// CopyTo overwrites target's DIDL-visible (and, with exact copyTo
	// semantics, internal) fields from this object, per spec §4.1 copyTo.
	CopyTo(target Object)
	// Equals compares DIDL-Lite-visible fields; with exact=true it also
	// compares location, virtual flag and auxdata (spec §4.1 equals).
	Equals(other Object, exact bool) bool
	// Validate returns an InvalidObject error if required fields are
	// missing, per variant-specific rules (spec §4.1 validate).
	Validate() error
}

// ErrInvalidObject is returned by Validate when required fields are
// missing or malformed.
type ErrInvalidObject struct {
	Reason string
}

func (e *ErrInvalidObject) Error() string { return "invalid object: " + e.Reason }

func invalid(format string, args ...interface{}) error {
	return &ErrInvalidObject{Reason: fmt.Sprintf(format, args...)}
}

func (h *Header) validateCommon() error {
	if h.ParentID < 0 && h.ID != IDRoot {
		return invalid("missing parent_id")
	}
	if h.Title == "" {
		return invalid("missing title")
	}
	if h.Class == "" {
		return invalid("missing upnp:class")
	}
	return nil
}

func (h *Header) cloneInto(dst *Header) {
	*dst = *h
	if h.RefID != nil {
		ref := *h.RefID
		dst.RefID = &ref
	}
	dst.Metadata = h.Metadata.Clone()
	dst.AuxData = h.AuxData.Clone()
}

// equalsCommon compares the DIDL-Lite-visible header fields.
func (h *Header) equalsCommon(o *Header, exact bool) bool {
	if h.ID != o.ID || h.ParentID != o.ParentID || h.Restricted != o.Restricted {
		return false
	}
	if h.Title != o.Title || h.Class != o.Class {
		return false
	}
	if !h.Metadata.Equal(o.Metadata) {
		return false
	}
	if exact {
		if h.Location != o.Location || h.Virtual != o.Virtual {
			return false
		}
		if !h.AuxData.Equal(o.AuxData) {
			return false
		}
	}
	return true
}

// copyToCommon overwrites dst's visible fields from h, preserving dst's
// id/parent_id when h lacks them (spec §4.1 copyTo).
func (h *Header) copyToCommon(dst *Header) {
	if h.ID != 0 {
		dst.ID = h.ID
	}
	if h.ParentID != 0 {
		dst.ParentID = h.ParentID
	}
	dst.Restricted = h.Restricted
	dst.Title = h.Title
	dst.Class = h.Class
	dst.Location = h.Location
	dst.Virtual = h.Virtual
	dst.Flags = h.Flags
	dst.Metadata = h.Metadata.Clone()
	dst.AuxData = h.AuxData.Clone()
	if h.RefID != nil {
		ref := *h.RefID
		dst.RefID = &ref
	} else {
		dst.RefID = nil
	}
}
