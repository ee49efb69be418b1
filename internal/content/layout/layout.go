// Package layout defines the pluggable virtual-layout trait the content
// manager invokes after persisting a newly added physical item (spec
// §4.5 Layout, §7 "Embedded script host").
package layout

import "github.com/opencds/mediaserver/internal/model"

// VirtualObject is one container-chain + leaf item the layout wants
// created: ContainerPath is walked by AddContainerChain from the root,
// then a virtual Item referencing the processed physical item is added
// as its child.
type VirtualObject struct {
	ContainerPath string // `/`-joined, components already escaped by the engine
	ContainerClass string
	Title         string
	Class         string
}

// Engine maps a newly added physical Item to zero or more virtual
// placements. Implementations choose their own rule language; the
// content manager knows nothing about it (spec §7 "the core knows
// nothing about the script language").
type Engine interface {
	// Process returns the virtual placements obj should appear under.
	Process(obj *model.Item) ([]VirtualObject, error)
	// Close releases any resources the engine holds (script VM, file
	// watches, ...). Reload is destroy-then-init behind the caller's lock.
	Close() error
}
