package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/model"
)

// RescanDirectory enqueues a rescan of the directory stored under
// containerID at dirPath, per an autoscan entry's mode/level/recursive
// settings (spec §4.5 rescan_directory). containerID doubles as the
// cycle's AutoscanID: the supervisor uses it to track every task this
// rescan (and the subtasks it spawns) touches until the cycle drains.
func (m *Manager) RescanDirectory(dirPath string, containerID int64, level config.ScanLevel, recursive bool, priority Priority) {
	var since time.Time
	if entry, err := m.store.Autoscan().GetAutoscanEntry(containerID); err == nil && entry != nil {
		since = entry.LastModified
	}
	mark := time.Now().UTC()
	m.autoscans.beginCycle(containerID, mark)

	t := &Task{Kind: TaskRescanDirectory, Priority: priority, Path: dirPath, ObjectID: containerID, AutoscanID: containerID, Recursive: recursive, Cancellable: true}
	t.run = func(ctx context.Context) { m.runRescan(ctx, t, level, since) }
	m.enqueue(t)
}

// runRescan implements rescan_directory: load the container for
// containerID, diff its known children against what's actually on
// disk, import new/changed entries and remove vanished ones (spec §4.5
// Autoscan). since is the cycle's high-water mark as it stood when the
// root RescanDirectory call started: every known file's mtime is
// compared against it, never against an in-process cache, so a process
// restart doesn't make every file look newly changed.
func (m *Manager) runRescan(ctx context.Context, t *Task, level config.ScanLevel, since time.Time) {
	if t.AutoscanID != 0 {
		defer m.autoscans.finish(ctx, t.AutoscanID)
	}

	container, err := m.store.Objects().LoadObject(t.ObjectID)
	if err != nil {
		var cdsErr *model.CDSError
		if errors.As(err, &cdsErr) && cdsErr.Code == model.ErrCodeNoSuchObject {
			// The container this autoscan points at was itself removed;
			// the rescan logs it and stops. Neither the autoscan row nor
			// its bound container id is changed here.
			logErr(ctx, "rescan: container vanished", err, "id", t.ObjectID)
			return
		}
		logErr(ctx, "rescan: load container failed", err, "id", t.ObjectID)
		return
	}

	entries, err := os.ReadDir(t.Path)
	if err != nil {
		logErr(ctx, "rescan: readdir failed", err, "path", t.Path)
		m.removeVanishedContainer(ctx, container.Head().ID)
		return
	}

	known, err := m.knownChildrenByLocation(container.Head().ID)
	if err != nil {
		logErr(ctx, "rescan: list children failed", err, "id", t.ObjectID)
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !t.isValid() {
			return
		}
		if isHidden(e.Name()) && !m.cfg.Import.HiddenFiles {
			continue
		}
		full := filepath.Join(t.Path, e.Name())
		seen[full] = true

		if e.IsDir() {
			if !t.Recursive {
				continue
			}
			childContainer, err := m.store.EnsurePathExistence(ctx, full)
			if err != nil {
				logErr(ctx, "rescan: ensure subdirectory failed", err, "path", full)
				continue
			}
			sub := &Task{Kind: TaskRescanDirectory, Priority: t.Priority, Path: full, ObjectID: childContainer, ParentID: t.ID, AutoscanID: t.AutoscanID, Recursive: true, Cancellable: true}
			sub.run = func(ctx context.Context) { m.runRescan(ctx, sub, level, since) }
			m.enqueue(sub)
			continue
		}

		existingID, known := known[full]
		if !known {
			if _, err := m.addSingleFile(ctx, full); err != nil {
				logErr(ctx, "rescan: import failed", err, "path", full)
			}
			continue
		}
		if level == config.ScanLevelFull && fileChangedSince(full, since) {
			if _, err := m.store.RemoveObject(ctx, existingID, false); err != nil {
				logErr(ctx, "rescan: remove stale object failed", err, "id", existingID)
				continue
			}
			if _, err := m.addSingleFile(ctx, full); err != nil {
				logErr(ctx, "rescan: reimport failed", err, "path", full)
			}
		}
	}

	for path, id := range known {
		if seen[path] {
			continue
		}
		changed, err := m.store.RemoveObject(ctx, id, false)
		if err != nil {
			logErr(ctx, "rescan: remove vanished file failed", err, "id", id)
			continue
		}
		m.notifyChangedParents(ctx, changed)
	}

	m.notifyContainerChanged(ctx, container.Head().ID)
}

// removeVanishedContainer drops a container whose backing directory
// disappeared out from under a running autoscan.
func (m *Manager) removeVanishedContainer(ctx context.Context, containerID int64) {
	changed, err := m.store.RemoveObject(ctx, containerID, false)
	if err != nil {
		logErr(ctx, "rescan: remove vanished container failed", err, "id", containerID)
		return
	}
	m.notifyChangedParents(ctx, changed)
}

func (m *Manager) knownChildrenByLocation(containerID int64) (map[string]int64, error) {
	ids, err := m.store.Objects().GetObjects(containerID, true)
	if err != nil {
		return nil, err
	}
	known := make(map[string]int64, len(ids))
	for _, id := range ids {
		obj, err := m.store.Objects().LoadObject(id)
		if err != nil {
			continue
		}
		if item, ok := obj.(*model.Item); ok && item.Location != "" {
			known[item.Location] = id
		}
	}
	return known, nil
}

// fileChangedSince reports whether path's on-disk mtime is newer than
// since, the Full scan level's change detector (spec §4.5 "Full:
// compares each known file's on-disk mtime against its last import").
// since is the autoscan's persisted last_modified high-water mark as it
// stood at the start of the current cycle, not a per-process cache, so
// the comparison survives restarts.
func fileChangedSince(path string, since time.Time) bool {
	t, err := times.Stat(path)
	if err != nil {
		return false
	}
	return t.ModTime().After(since)
}
