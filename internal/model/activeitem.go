package model

import "os"

// ActiveItem is an Item whose GET may re-execute an external program,
// feeding it a DIDL-Lite snapshot on stdin and absorbing a DIDL-Lite
// response from stdout to refresh metadata (spec §3 ActiveItem).
type ActiveItem struct {
	Item

	Action string // absolute path to the external executable
	State  string // opaque, carried across invocations
}

// NewActiveItem returns an ActiveItem with an initialized resource list.
func NewActiveItem() *ActiveItem {
	return &ActiveItem{Item: *NewItem()}
}

func (a *ActiveItem) Type() ObjectType { return TypeItem | TypeActiveItem }

func (a *ActiveItem) Clone() Object {
	clone := &ActiveItem{
		Item:   Item{MimeType: a.MimeType, ServiceID: a.ServiceID, Resources: cloneResources(a.Resources)},
		Action: a.Action,
		State:  a.State,
	}
	a.Header.cloneInto(&clone.Header)
	return clone
}

func (a *ActiveItem) CopyTo(target Object) {
	dst, ok := target.(*ActiveItem)
	if !ok {
		return
	}
	a.Header.copyToCommon(&dst.Header)
	dst.MimeType = a.MimeType
	dst.ServiceID = a.ServiceID
	dst.Resources = cloneResources(a.Resources)
	dst.Action = a.Action
	dst.State = a.State
}

func (a *ActiveItem) Equals(other Object, exact bool) bool {
	o, ok := other.(*ActiveItem)
	if !ok {
		return false
	}
	if !a.Header.equalsCommon(&o.Header, exact) {
		return false
	}
	if a.MimeType != o.MimeType || a.Action != o.Action {
		return false
	}
	if exact && (a.ServiceID != o.ServiceID || a.State != o.State) {
		return false
	}
	return resourcesEqual(a.Resources, o.Resources)
}

func (a *ActiveItem) Validate() error {
	if err := a.Header.validateCommon(); err != nil {
		return err
	}
	if a.MimeType == "" {
		return invalid("missing mime type")
	}
	if a.Action == "" {
		return invalid("missing action")
	}
	info, err := os.Stat(a.Action)
	if err != nil {
		return invalid("action %q does not exist: %v", a.Action, err)
	}
	if info.Mode()&0o111 == 0 {
		return invalid("action %q is not executable", a.Action)
	}
	return nil
}
