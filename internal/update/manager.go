// Package update implements the GENA event coalescing worker: container
// change notifications accumulate on a pending list and are flushed as
// one batched event on a timer, per spec §4.3 Update Manager (grounded
// line-for-line on the original's update_manager.cc scheduling model).
package update

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencds/mediaserver/internal/log"
	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
)

// Coalescing constants, carried verbatim from update_manager.cc.
const (
	bufferInterval = 3000 * time.Millisecond
	specInterval   = 2000 * time.Millisecond
	minSleep       = 1 * time.Millisecond
)

// FlushLevel requests earlier delivery of the pending batch.
type FlushLevel int

const (
	// FlushNormal obeys the buffering interval.
	FlushNormal FlushLevel = iota
	// FlushASAP delivers now, subject only to the UPnP-minimum spec interval.
	FlushASAP
)

// Pair is one (objectID, updateID) entry in an emitted batch.
type Pair struct {
	ObjectID int64
	UpdateID uint32
}

// ContainerStore is the narrow slice of the storage contract the update
// manager needs: load a container to read+bump its updateID, and
// persist the bump.
type ContainerStore interface {
	LoadObject(id int64) (model.Object, error)
	UpdateObject(obj model.Object) (storage.ChangedParents, error)
}

// Emitter receives one batch of (id, updateID) pairs per flush. The
// transport adapter (C8) implements this to drive GENA, rendering the
// batch as a comma-joined "id,updateID,..." ContainerUpdateIDs value.
type Emitter func(ctx context.Context, pairs []Pair)

// Manager is the single coalescing worker described in spec §4.3.
type Manager struct {
	store ContainerStore
	emit  Emitter

	mu          sync.Mutex
	pendingByID map[int64]int // index into pendingIDs; a present key means an update is already pending
	pendingIDs  []int64
	pendingUIDs []uint32
	flushLevel  FlushLevel
	wake        chan struct{}

	lastIdle time.Time
	lastSend time.Time

	systemUpdateID atomic.Uint32

	done chan struct{}
}

// SystemUpdateID returns the current value of the monotonic counter the
// CDS service advertises through GetSystemUpdateID (spec §4.3 "a
// monotonic counter... increments on every CDS change event").
func (m *Manager) SystemUpdateID() uint32 {
	return m.systemUpdateID.Load()
}

// New returns a Manager that will bump updateIDs through store and
// deliver batches through emit once Run is running.
func New(store ContainerStore, emit Emitter) *Manager {
	return &Manager{
		store:       store,
		emit:        emit,
		pendingByID: make(map[int64]int),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// ContainerChanged bumps id's updateID (if it has no pending update
// yet) and adds it to the pending batch.
func (m *Manager) ContainerChanged(ctx context.Context, id int64) {
	m.mu.Lock()
	if _, have := m.pendingByID[id]; have {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	obj, err := m.store.LoadObject(id)
	if err != nil {
		log.Error(ctx, "update manager: loading container", err, "objectID", id)
		return
	}
	container, ok := obj.(*model.Container)
	if !ok {
		log.Warn(ctx, "update manager: object is not a container", "objectID", id)
		return
	}
	container.UpdateID++
	if _, err := m.store.UpdateObject(container); err != nil {
		log.Error(ctx, "update manager: persisting updateID bump", err, "objectID", id)
		return
	}

	m.mu.Lock()
	wasEmpty := len(m.pendingIDs) == 0
	m.pendingByID[id] = len(m.pendingIDs)
	m.pendingIDs = append(m.pendingIDs, id)
	m.pendingUIDs = append(m.pendingUIDs, container.UpdateID)
	m.mu.Unlock()
	if wasEmpty {
		m.signal()
	}
}

// ContainersChanged is the vectorized variant of ContainerChanged.
func (m *Manager) ContainersChanged(ctx context.Context, ids []int64) {
	for _, id := range ids {
		m.ContainerChanged(ctx, id)
	}
}

// Flush requests earlier delivery of the pending batch at the given level.
func (m *Manager) Flush(level FlushLevel) {
	m.mu.Lock()
	if level > m.flushLevel {
		m.flushLevel = level
	}
	m.mu.Unlock()
	m.signal()
}

// Run is the worker loop; call it in its own goroutine. It returns when
// ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	m.lastIdle = time.Now()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	for {
		m.mu.Lock()
		empty := len(m.pendingIDs) == 0
		m.mu.Unlock()

		if empty {
			if timerArmed {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timerArmed = false
			}
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				m.lastIdle = time.Now()
				continue
			}
		}

		m.mu.Lock()
		level := m.flushLevel
		m.mu.Unlock()

		// Coalescing policy (spec §4.3): sleep until
		// min(last_idle+BUFFER, last_send+SPEC); an ASAP flush drops the
		// buffer term and is bound only by the spec minimum interval.
		sleepUntil := m.lastIdle.Add(bufferInterval)
		specBound := m.lastSend.Add(specInterval)
		if level == FlushASAP {
			sleepUntil = specBound
		} else if specBound.Before(sleepUntil) {
			sleepUntil = specBound
		}
		sleep := time.Until(sleepUntil)

		if sleep >= minSleep {
			timer.Reset(sleep)
			timerArmed = true
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			case <-timer.C:
				timerArmed = false
				continue
			}
		}

		m.sendUpdates(ctx)
		m.lastSend = time.Now()
		m.mu.Lock()
		m.flushLevel = FlushNormal
		m.mu.Unlock()
	}
}

func (m *Manager) sendUpdates(ctx context.Context) {
	m.mu.Lock()
	pairs := make([]Pair, len(m.pendingIDs))
	for i := range m.pendingIDs {
		pairs[i] = Pair{ObjectID: m.pendingIDs[i], UpdateID: m.pendingUIDs[i]}
	}
	m.pendingIDs = nil
	m.pendingUIDs = nil
	m.pendingByID = make(map[int64]int)
	m.mu.Unlock()

	if len(pairs) == 0 {
		return
	}
	m.systemUpdateID.Add(1)
	log.Debug(ctx, "update manager: sending updates", "count", len(pairs), "systemUpdateID", m.systemUpdateID.Load())
	m.emit(ctx, pairs)
}
