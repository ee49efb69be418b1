package model

import "os"

// Item is a catalog object referring to playable/servable content: a
// physical file, or a virtual item whose RefID points back at one
// (spec §3 Item).
type Item struct {
	Header

	MimeType  string
	ServiceID string // set for rows sourced from an online service
	Resources []Resource
}

// NewItem returns an Item with initialized (empty) resource list and
// metadata/auxdata dicts, ready for field-by-field population.
func NewItem() *Item {
	return &Item{
		Header:    Header{Metadata: Dict{}, AuxData: Dict{}},
		Resources: []Resource{},
	}
}

func (i *Item) Head() *Header    { return &i.Header }
func (i *Item) Type() ObjectType { return TypeItem }

func (i *Item) Clone() Object {
	clone := &Item{MimeType: i.MimeType, ServiceID: i.ServiceID, Resources: cloneResources(i.Resources)}
	i.Header.cloneInto(&clone.Header)
	return clone
}

func (i *Item) CopyTo(target Object) {
	dst, ok := target.(*Item)
	if !ok {
		return
	}
	i.Header.copyToCommon(&dst.Header)
	dst.MimeType = i.MimeType
	dst.ServiceID = i.ServiceID
	dst.Resources = cloneResources(i.Resources)
}

func (i *Item) Equals(other Object, exact bool) bool {
	o, ok := other.(*Item)
	if !ok {
		return false
	}
	if !i.Header.equalsCommon(&o.Header, exact) {
		return false
	}
	if i.MimeType != o.MimeType {
		return false
	}
	if exact && i.ServiceID != o.ServiceID {
		return false
	}
	return resourcesEqual(i.Resources, o.Resources)
}

func (i *Item) Validate() error {
	if err := i.Header.validateCommon(); err != nil {
		return err
	}
	if i.MimeType == "" {
		return invalid("missing mime type")
	}
	if i.Header.Virtual {
		return nil
	}
	if i.Header.Location == "" {
		return invalid("missing location")
	}
	if _, err := os.Stat(i.Header.Location); err != nil {
		return invalid("location %q does not exist: %v", i.Header.Location, err)
	}
	return nil
}

// PrimaryResource returns resource 0, the one served by default, or nil
// if the item has no resources (metadata-only import, spec §3).
func (i *Item) PrimaryResource() *Resource {
	if len(i.Resources) == 0 {
		return nil
	}
	return &i.Resources[0]
}
