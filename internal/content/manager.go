// Package content implements the asynchronous import pipeline: the
// prioritized task queue and worker, the add-file and rescan
// algorithms, autoscan directory lifecycle, and virtual-layout
// invocation (spec §4.5 Content Manager).
package content

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/content/layout"
	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/session"
	"github.com/opencds/mediaserver/internal/storage"
	"github.com/opencds/mediaserver/internal/update"
)

// Manager is the content manager: one worker goroutine draining two
// priority queues (spec §4.5 Scheduling model).
type Manager struct {
	cfg      *config.Config
	store    *storage.Store
	updates  *update.Manager
	sessions *session.Manager
	sniffer  ContentSniffer

	mu      sync.Mutex
	layout  layout.Engine
	q1      []*Task
	q2      []*Task
	running *Task
	wake    chan struct{}
	nextID  atomic.Int64

	autoscans *autoscanSupervisor
}

// Store returns the underlying storage handle, for components (the
// transport media handler) that need to read the catalog directly
// without going through a content-manager operation.
func (m *Manager) Store() *storage.Store { return m.store }

// New returns a Manager wired to store, the update/session managers and
// cfg's configured virtual layout.
func New(cfg *config.Config, store *storage.Store, updates *update.Manager, sessions *session.Manager) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		updates:  updates,
		sessions: sessions,
		sniffer:  DefaultSniffer{},
		wake:     make(chan struct{}, 1),
	}
	m.layout = m.newLayoutEngine()
	m.autoscans = newAutoscanSupervisor(m)
	return m
}

func (m *Manager) newLayoutEngine() layout.Engine {
	switch m.cfg.Import.Scripting.VirtualLayout.Type {
	case config.LayoutBuiltin:
		return layout.NewBuiltin()
	default:
		return nil
	}
}

// ReloadLayout destroys and re-inits the layout engine atomically
// (spec §4.5 Layout: "reload is atomic, destroy then init behind the
// same lock").
func (m *Manager) ReloadLayout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layout != nil {
		if err := m.layout.Close(); err != nil {
			return err
		}
	}
	m.layout = m.newLayoutEngine()
	return nil
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) enqueue(t *Task) {
	t.ID = m.nextID.Add(1)
	m.mu.Lock()
	if t.Priority == PriorityHigh {
		m.q1 = append(m.q1, t)
	} else {
		m.q2 = append(m.q2, t)
	}
	m.mu.Unlock()
	if t.AutoscanID != 0 {
		m.autoscans.track(t.AutoscanID)
	}
	m.signal()
}

// Start arms every configured autoscan directory (timed and inotify)
// and begins the worker loop; call once during server startup after
// the store has been opened and bootstrapped.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.autoscans.Start(ctx); err != nil {
		return err
	}
	go m.Run(ctx)
	return nil
}

// Stop tears down autoscan watches and invalidates queued work; the
// caller is still responsible for cancelling the context passed to Run
// so the worker goroutine itself exits.
func (m *Manager) Stop() {
	m.autoscans.Stop()
	m.Shutdown()
}

// Run is the worker loop: dequeue Q1 then Q2, skip invalidated tasks,
// run the rest. Call in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	for {
		task := m.dequeue()
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		if !task.isValid() {
			continue
		}
		m.mu.Lock()
		m.running = task
		m.mu.Unlock()

		task.run(ctx)

		m.mu.Lock()
		m.running = nil
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (m *Manager) dequeue() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.q1) > 0 {
		t := m.q1[0]
		m.q1 = m.q1[1:]
		return t
	}
	if len(m.q2) > 0 {
		t := m.q2[0]
		m.q2 = m.q2[1:]
		return t
	}
	return nil
}

// InvalidateTask marks invalid the task with this id and every task
// whose ParentID is id (its direct children), whether queued or
// currently running (spec §4.5 Cancellation and invalidation).
func (m *Manager) InvalidateTask(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.q1 {
		if t.ID == id || t.ParentID == id {
			t.markInvalid()
		}
	}
	for _, t := range m.q2 {
		if t.ID == id || t.ParentID == id {
			t.markInvalid()
		}
	}
	if m.running != nil && (m.running.ID == id || m.running.ParentID == id) {
		m.running.markInvalid()
	}
}

// InvalidatePendingAddFilesUnder marks invalid every pending AddFile
// task whose path is at or under prefix, so a container removal isn't
// racing an in-flight scan of the same subtree (spec §4.5).
func (m *Manager) InvalidatePendingAddFilesUnder(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark := func(tasks []*Task) {
		for _, t := range tasks {
			if t.Kind == TaskAddFile && (t.Path == prefix || strings.HasPrefix(t.Path, prefix+"/")) {
				t.markInvalid()
			}
		}
	}
	mark(m.q1)
	mark(m.q2)
}

// Shutdown cancels in-flight work by invalidating every queued task;
// the caller is expected to cancel the context passed to Run.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.q1 {
		t.markInvalid()
	}
	for _, t := range m.q2 {
		t.markInvalid()
	}
}

// notifyContainerChanged bumps the container's updateID (C3) and fans
// out to UI sessions (C4), the final step of the add-file algorithm
// (spec §4.5 step 8).
func (m *Manager) notifyContainerChanged(ctx context.Context, containerID int64) {
	m.updates.ContainerChanged(ctx, containerID)
	if m.sessions != nil {
		m.sessions.ContainerChangedUI(containerID)
	}
}

func logErr(ctx context.Context, msg string, err error, keyvals ...interface{}) {
	log.Error(ctx, msg, err, keyvals...)
}
