package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidlock/squire/internal/domain"
)

// SessionStore owns all per-conversation session records. Callers get
// copies; only the store mutates records, and only through these methods.
type SessionStore interface {
	// Resolve returns the session for key, creating an idle one if none
	// exists. Never fails.
	Resolve(key domain.ConversationKey) domain.Session

	// TryAcquire atomically claims the session for one turn. Returns
	// false without blocking when a turn is already in flight; concurrent
	// mentions are rejected, not queued.
	TryAcquire(key domain.ConversationKey) (domain.Session, bool)

	// Release ends the in-flight turn: clears busy, bumps turn count and
	// activity, and stores the new handle when the turn succeeded. A
	// failed turn keeps the previous handle.
	Release(key domain.ConversationKey, handle string, succeeded bool)

	// Evict invalidates the session so the next mention starts fresh. A
	// busy session only loses its handle; an idle one is removed.
	Evict(key domain.ConversationKey) bool

	// EvictIdle removes idle sessions untouched for longer than ttl and
	// returns how many were removed. Busy sessions are never evicted.
	EvictIdle(ttl time.Duration) int

	// Snapshot returns copies of all sessions, for status listings.
	Snapshot() []domain.Session
}

// MemorySessionStore is the in-process SessionStore. All operations are
// constant-time under a single mutex; nothing inside a critical section
// blocks.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	evicted  map[string]bool // busy records evicted mid-turn; next Release is a no-op bump-wise

	now func() time.Time // test seam
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		evicted:  make(map[string]bool),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Resolve(key domain.ConversationKey) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.resolveLocked(key)
}

func (s *MemorySessionStore) TryAcquire(key domain.ConversationKey) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.resolveLocked(key)
	if sess.Busy {
		return domain.Session{}, false
	}
	sess.Busy = true
	return *sess, true
}

func (s *MemorySessionStore) Release(key domain.ConversationKey, handle string, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key.String()]
	if !ok {
		return
	}
	sess.Busy = false
	sess.LastActivity = s.now()
	if s.evicted[key.String()] {
		// The turn was evicted mid-flight; it contributes neither a
		// turn nor a handle to the now-fresh record.
		delete(s.evicted, key.String())
		return
	}
	sess.TurnCount++
	if succeeded && handle != "" {
		sess.Handle = handle
	}
}

func (s *MemorySessionStore) Evict(key domain.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key.String()]
	if !ok {
		return false
	}
	if sess.Busy {
		// The in-flight turn still owns the record; dropping the handle
		// forces a fresh backend session next time, and the eviction
		// mark keeps the dying turn's Release from counting.
		sess.Handle = ""
		sess.TurnCount = 0
		s.evicted[key.String()] = true
		return true
	}
	delete(s.sessions, key.String())
	return true
}

func (s *MemorySessionStore) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.Busy {
			continue
		}
		if sess.IdleSince(now, ttl) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *MemorySessionStore) Snapshot() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// resolveLocked finds or creates the record for key. Caller holds mu.
func (s *MemorySessionStore) resolveLocked(key domain.ConversationKey) *domain.Session {
	if sess, ok := s.sessions[key.String()]; ok {
		return sess
	}
	sess := &domain.Session{
		ID:           uuid.New().String(),
		Key:          key,
		CreatedAt:    s.now(),
		LastActivity: s.now(),
	}
	s.sessions[key.String()] = sess
	return sess
}
