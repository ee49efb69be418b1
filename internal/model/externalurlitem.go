package model

// ExternalURLItem is an Item whose content lives at a remote URL rather
// than on the local filesystem; Location holds that URL and no local
// path check applies (spec §3 ExternalURLItem).
type ExternalURLItem struct {
	Item

	ProxyURL bool // if set, the server proxies the remote content instead of redirecting
}

// NewExternalURLItem returns an ExternalURLItem with an initialized
// resource list.
func NewExternalURLItem() *ExternalURLItem {
	return &ExternalURLItem{Item: *NewItem()}
}

func (e *ExternalURLItem) Type() ObjectType { return TypeItem | TypeExternalURL }

func (e *ExternalURLItem) Clone() Object {
	clone := &ExternalURLItem{
		Item:     Item{MimeType: e.MimeType, ServiceID: e.ServiceID, Resources: cloneResources(e.Resources)},
		ProxyURL: e.ProxyURL,
	}
	e.Header.cloneInto(&clone.Header)
	return clone
}

func (e *ExternalURLItem) CopyTo(target Object) {
	dst, ok := target.(*ExternalURLItem)
	if !ok {
		return
	}
	e.Header.copyToCommon(&dst.Header)
	dst.MimeType = e.MimeType
	dst.ServiceID = e.ServiceID
	dst.Resources = cloneResources(e.Resources)
	dst.ProxyURL = e.ProxyURL
}

func (e *ExternalURLItem) Equals(other Object, exact bool) bool {
	o, ok := other.(*ExternalURLItem)
	if !ok {
		return false
	}
	if !e.Header.equalsCommon(&o.Header, exact) {
		return false
	}
	if e.MimeType != o.MimeType {
		return false
	}
	if exact && (e.ServiceID != o.ServiceID || e.ProxyURL != o.ProxyURL) {
		return false
	}
	return resourcesEqual(e.Resources, o.Resources)
}

func (e *ExternalURLItem) Validate() error {
	if err := e.Header.validateCommon(); err != nil {
		return err
	}
	if e.Header.Location == "" {
		return invalid("missing URL")
	}
	return nil
}
