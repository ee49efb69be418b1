package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
)

// AddFile enqueues the add-file task for path at priority (spec §4.5
// add_file). Recursive controls whether a directory argument walks its
// subtree; a single file is always just itself.
func (m *Manager) AddFile(path string, recursive bool, priority Priority) {
	t := &Task{Kind: TaskAddFile, Priority: priority, Path: path, Recursive: recursive, Cancellable: true}
	t.run = func(ctx context.Context) { m.runAddFile(ctx, t) }
	m.enqueue(t)
}

func (m *Manager) runAddFile(ctx context.Context, t *Task) {
	info, err := os.Lstat(t.Path)
	if err != nil {
		logErr(ctx, "add_file: stat failed", err, "path", t.Path)
		return
	}
	if info.IsDir() {
		m.addDirectory(ctx, t)
		return
	}
	if _, err := m.addSingleFile(ctx, t.Path); err != nil {
		logErr(ctx, "add_file: import failed", err, "path", t.Path)
	}
}

// addDirectory implements the Recursive branch of add_file: it imports
// every visible entry directly, then spawns a child AddFile task per
// subdirectory inheriting t.ID as ParentID so a later invalidate_task on
// the directory cancels the whole still-queued subtree.
func (m *Manager) addDirectory(ctx context.Context, t *Task) {
	entries, err := os.ReadDir(t.Path)
	if err != nil {
		logErr(ctx, "add_file: readdir failed", err, "path", t.Path)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var errs *multierror.Error
	for _, e := range entries {
		if !t.isValid() {
			return
		}
		if isHidden(e.Name()) && !m.cfg.Import.HiddenFiles {
			continue
		}
		full := filepath.Join(t.Path, e.Name())
		if e.IsDir() {
			if !t.Recursive {
				continue
			}
			child := &Task{Kind: TaskAddFile, Priority: t.Priority, Path: full, Recursive: true, ParentID: t.ID, Cancellable: true}
			child.run = func(ctx context.Context) { m.runAddFile(ctx, child) }
			m.enqueue(child)
			continue
		}
		if _, err := m.addSingleFile(ctx, full); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", full, err))
		}
	}
	// Import failures don't abort the scan (spec §7 IO); they're
	// collected and logged as one report instead of per-file noise.
	if errs.ErrorOrNil() != nil {
		logErr(ctx, "add_file: some files failed to import", errs, "dir", t.Path, "count", len(errs.Errors))
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addSingleFile is create_object_from_file plus its storage and layout
// side effects (spec §4.5 add_file steps 2-8): classify, extract
// metadata, persist the Item, run it through the virtual layout engine,
// and notify the containing container's listeners.
func (m *Manager) addSingleFile(ctx context.Context, path string) (int64, error) {
	containerID, err := m.store.EnsurePathExistence(ctx, filepath.Dir(path))
	if err != nil {
		return 0, err
	}

	existing, err := m.store.Objects().FindObjectByTitle(filepath.Base(path), containerID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.Head().ID, nil
	}

	mimeType, ignored := classifyMimeType(m.cfg, m.sniffer, path)
	if ignored {
		return 0, nil
	}
	upnpClass := classifyUpnpClass(m.cfg, mimeType)

	item := model.NewItem()
	item.Title = filepath.Base(path)
	item.Class = upnpClass
	item.Location = path
	item.MimeType = mimeType
	item.ParentID = containerID
	item.Resources = []model.Resource{builtinResource(mimeType, path)}

	if extractor := extractorFor(mimeType); extractor != nil {
		if md, err := extractor.Extract(path); err == nil {
			for k, v := range md {
				item.Metadata[k] = v
			}
		}
	}
	if item.Metadata[model.PropTitle] != "" {
		item.Title = item.Metadata[model.PropTitle]
	}

	id, changed, err := m.store.Objects().AddObject(item)
	if err != nil {
		return 0, err
	}
	item.ID = id
	m.notifyChangedParents(ctx, changed)
	m.notifyContainerChanged(ctx, containerID)

	m.applyLayout(ctx, item)
	return id, nil
}

// applyLayout runs the active virtual-layout engine over a freshly
// imported item, creating (or reusing) each returned virtual container
// chain and linking a reference item into it (spec §4.5 step 7,
// §4.2 Reference semantics).
func (m *Manager) applyLayout(ctx context.Context, item *model.Item) {
	m.mu.Lock()
	engine := m.layout
	m.mu.Unlock()
	if engine == nil {
		return
	}
	virtuals, err := engine.Process(item)
	if err != nil {
		logErr(ctx, "layout: process failed", err, "item", item.ID)
		return
	}
	for _, v := range virtuals {
		leafID, topmost, err := m.store.AddContainerChain(ctx, v.ContainerPath, v.ContainerClass, nil)
		if err != nil {
			logErr(ctx, "layout: add_container_chain failed", err, "path", v.ContainerPath)
			continue
		}
		refID := item.ID
		ref := model.NewItem()
		ref.Title = v.Title
		ref.Class = v.Class
		ref.ParentID = leafID
		ref.Virtual = true
		ref.RefID = &refID
		ref.Location = item.Location
		ref.MimeType = item.MimeType
		ref.Resources = item.Resources

		if _, _, err := m.store.Objects().AddObject(ref); err != nil {
			logErr(ctx, "layout: reference add_object failed", err, "path", v.ContainerPath)
			continue
		}
		m.notifyContainerChanged(ctx, topmost)
		m.notifyContainerChanged(ctx, leafID)
	}
}

// notifyChangedParents fans out a ChangedParents result to the UPnP
// eventing half and the web-UI half (spec §4.2 Removal semantics).
func (m *Manager) notifyChangedParents(ctx context.Context, c storage.ChangedParents) {
	if len(c.UPnP) > 0 {
		m.updates.ContainersChanged(ctx, c.UPnP)
	}
	if m.sessions != nil {
		for _, id := range c.UI {
			m.sessions.ContainerChangedUI(id)
		}
	}
}

// builtinResource builds the one DIDL-Lite <res> the storage layer
// persists for a plain filesystem item (spec §4.3 resources).
func builtinResource(mimeType, path string) model.Resource {
	r := model.NewResource(model.HandlerLibrary)
	r.Attributes[model.AttrProtocolInfo] = "http-get:*:" + mimeType + ":*"
	if info, err := os.Stat(path); err == nil {
		r.Attributes[model.AttrSize] = strconv.FormatInt(info.Size(), 10)
	}
	return r
}
