// Package session implements the in-memory UI session table: sessions
// keyed by an unguessable id, a bounded per-session set of pending UI
// update ids, and timeout eviction (spec §4.4, grounded on the
// original's session_manager.h/.cc).
package session

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/opencds/mediaserver/internal/log"
)

// maxPendingUpdateIDs bounds the per-session pending set; once exceeded
// it collapses to "all" rather than growing unbounded (spec §4.4).
const maxPendingUpdateIDs = 10

const hexAlphabet = "0123456789abcdef"

// idLength is 32 hex chars = 128 bits, the unguessable id width spec §4.4 asks for.
const idLength = 32

// Placeholder identifies one of a session's two UI-state dictionaries
// (spec: PRIMARY/SECONDARY driver placeholders).
type Placeholder int

const (
	Primary Placeholder = iota + 1
	Secondary
)

// Session is one UI session: created on web-UI login, evicted after
// Timeout of inactivity.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LoggedIn   bool
	Timeout    time.Duration

	mu         sync.Mutex
	lastAccess time.Time
	primary    map[string]string
	secondary  map[string]string
	pending    map[int64]struct{}
	pendingAll bool
}

func newSession(id string, timeout time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		lastAccess: now,
		Timeout:    timeout,
		primary:    map[string]string{},
		secondary:  map[string]string{},
		pending:    map[int64]struct{}{},
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess) > s.Timeout
}

// PutTo saves key=value under the given placeholder dictionary.
func (s *Session) PutTo(p Placeholder, key, value string) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dict(p)[key] = value
}

// GetFrom retrieves a value previously saved with PutTo.
func (s *Session) GetFrom(p Placeholder, key string) (string, bool) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.dict(p)[key]
	return v, ok
}

func (s *Session) dict(p Placeholder) map[string]string {
	if p == Secondary {
		return s.secondary
	}
	return s.primary
}

// addPendingUpdate records that container id changed during this
// session's lifetime, collapsing to "all" once the bound is exceeded.
func (s *Session) addPendingUpdate(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAll {
		return
	}
	s.pending[id] = struct{}{}
	if len(s.pending) > maxPendingUpdateIDs {
		s.pendingAll = true
		s.pending = nil
	}
}

// TakeUpdateIDs atomically returns and clears the pending set: either
// "all" (true) or the explicit id list.
func (s *Session) TakeUpdateIDs() (ids []int64, all bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAll {
		s.pendingAll = false
		return nil, true
	}
	ids = make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = map[int64]struct{}{}
	return ids, false
}

// ErrSessionExpired is returned by Manager.Get for an id that timed out
// or never existed.
type ErrSessionExpired struct{ ID string }

func (e *ErrSessionExpired) Error() string { return "session expired: " + e.ID }

// Manager owns the session table and the eviction timer.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	checkInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// New returns a Manager whose eviction timer fires every checkInterval.
func New(checkInterval time.Duration) *Manager {
	return &Manager{
		sessions:      map[string]*Session{},
		checkInterval: checkInterval,
		stop:          make(chan struct{}),
	}
}

// Run drives the periodic eviction timer until Stop is called.
func (m *Manager) Run() {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

// Stop halts the eviction timer.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) evictExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.expired(now) {
			delete(m.sessions, id)
			log.Debug(nil, "session expired", "sessionID", id)
		}
	}
}

// CreateSession creates and registers a new session with the given
// timeout, using an unguessable 128-bit hex id.
func (m *Manager) CreateSession(timeout time.Duration) (*Session, error) {
	id, err := gonanoid.Generate(hexAlphabet, idLength)
	if err != nil {
		return nil, err
	}
	s := newSession(id, timeout)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id, refreshing last_access, or
// ErrSessionExpired if it doesn't exist or has already timed out.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &ErrSessionExpired{ID: id}
	}
	if s.expired(time.Now()) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, &ErrSessionExpired{ID: id}
	}
	s.touch()
	return s, nil
}

// ContainerChangedUI fans out a container-changed notification to every
// logged-in session (spec §4.4 container_changed_ui).
func (m *Manager) ContainerChangedUI(id int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.LoggedIn {
			s.addPendingUpdate(id)
		}
	}
}
