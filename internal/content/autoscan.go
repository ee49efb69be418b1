package content

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rjeczalik/notify"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/storage"
)

// autoscanSupervisor drives the two autoscan modes config allows: timed
// directories on a cron schedule, and inotify directories watched live
// via rjeczalik/notify (spec §4.5 Autoscan).
type autoscanSupervisor struct {
	m *Manager

	mu       sync.Mutex
	cron     *cron.Cron
	watchers map[int64]chan notify.EventInfo

	// counts and watermarks track the in-flight rescan cycle for each
	// autoscan directory, keyed by storage id: counts is the task_count
	// of outstanding descendant tasks (root rescan plus every child
	// rescan it spawned), watermarks the new last_modified value
	// that cycle will persist once its count drains to zero.
	counts     map[int64]int64
	watermarks map[int64]time.Time
}

func newAutoscanSupervisor(m *Manager) *autoscanSupervisor {
	return &autoscanSupervisor{
		m:          m,
		cron:       cron.New(),
		watchers:   make(map[int64]chan notify.EventInfo),
		counts:     make(map[int64]int64),
		watermarks: make(map[int64]time.Time),
	}
}

// beginCycle records the high-water mark a freshly started rescan cycle
// for storageID will persist once it completes.
func (s *autoscanSupervisor) beginCycle(storageID int64, mark time.Time) {
	s.mu.Lock()
	s.watermarks[storageID] = mark
	s.mu.Unlock()
}

// track registers one more outstanding descendant task for storageID's
// in-flight cycle.
func (s *autoscanSupervisor) track(storageID int64) {
	s.mu.Lock()
	s.counts[storageID]++
	s.mu.Unlock()
}

// finish marks one of storageID's cycle tasks complete; once task_count
// drains to zero the cycle's watermark is persisted. The cron schedule
// armTimed sets up does not consult this count: it fires on its own
// interval whether or not the previous cycle has drained.
func (s *autoscanSupervisor) finish(ctx context.Context, storageID int64) {
	s.mu.Lock()
	s.counts[storageID]--
	remaining := s.counts[storageID]
	mark, hasMark := s.watermarks[storageID]
	if remaining <= 0 {
		delete(s.counts, storageID)
		delete(s.watermarks, storageID)
	}
	s.mu.Unlock()

	if remaining > 0 || !hasMark {
		return
	}
	if err := s.m.store.Autoscan().UpdateLastModified(storageID, mark); err != nil {
		logErr(ctx, "autoscan: persist watermark failed", err, "storage_id", storageID)
	}
}

// Start loads every configured autoscan entry and arms its watch
// (timed → cron schedule, inotify → a notify watchpoint), then starts
// the cron scheduler.
func (s *autoscanSupervisor) Start(ctx context.Context) error {
	entries, err := s.m.store.Autoscan().GetAutoscanList("")
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.arm(ctx, e)
	}
	s.cron.Start()
	return nil
}

// Stop tears down every watch and the cron scheduler.
func (s *autoscanSupervisor) Stop() {
	s.mu.Lock()
	for id, ch := range s.watchers {
		notify.Stop(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *autoscanSupervisor) arm(ctx context.Context, e storage.AutoscanEntry) {
	switch e.Mode {
	case config.ScanModeTimed:
		s.armTimed(ctx, e)
	case config.ScanModeInotify:
		s.armInotify(ctx, e)
	}
}

func (s *autoscanSupervisor) armTimed(ctx context.Context, e storage.AutoscanEntry) {
	spec := "@every " + secondsSpec(e.Interval)
	entry := e
	s.cron.AddFunc(spec, func() {
		s.m.RescanDirectory(entry.Location, entry.StorageID, entry.Level, entry.Recursive, PriorityLow)
	})
}

func (s *autoscanSupervisor) armInotify(ctx context.Context, e storage.AutoscanEntry) {
	ch := make(chan notify.EventInfo, 32)
	tree := e.Location + "/..."
	if !e.Recursive {
		tree = e.Location + "/*"
	}
	if err := notify.Watch(tree, ch, notify.Create, notify.Remove, notify.Rename, notify.Write); err != nil {
		return
	}
	s.mu.Lock()
	s.watchers[e.StorageID] = ch
	s.mu.Unlock()

	entry := e
	go func() {
		for range ch {
			s.m.RescanDirectory(entry.Location, entry.StorageID, entry.Level, entry.Recursive, PriorityHigh)
		}
	}()
}

func secondsSpec(n int) string {
	if n <= 0 {
		n = 1
	}
	d := (time.Duration(n) * time.Second).String()
	return d
}
