package model

// Container is a catalog object that groups children: a physical
// filesystem directory or a virtual grouping created by the layout
// engine or the container-chain builder (spec §3 Container).
type Container struct {
	Header

	Searchable bool
	UpdateID   uint32 // ContainerUpdateID, bumped by the update manager (spec §4.3)
	ChildCount int
}

// NewContainer returns a Container with the container type bit set.
func NewContainer() *Container {
	return &Container{}
}

func (c *Container) Head() *Header   { return &c.Header }
func (c *Container) Type() ObjectType { return TypeContainer }

func (c *Container) Clone() Object {
	clone := &Container{Searchable: c.Searchable, UpdateID: c.UpdateID, ChildCount: c.ChildCount}
	c.Header.cloneInto(&clone.Header)
	return clone
}

func (c *Container) CopyTo(target Object) {
	dst, ok := target.(*Container)
	if !ok {
		return
	}
	c.Header.copyToCommon(&dst.Header)
	dst.Searchable = c.Searchable
}

func (c *Container) Equals(other Object, exact bool) bool {
	o, ok := other.(*Container)
	if !ok {
		return false
	}
	if !c.Header.equalsCommon(&o.Header, exact) {
		return false
	}
	return c.Searchable == o.Searchable
}

func (c *Container) Validate() error {
	return c.Header.validateCommon()
}
