package labelling

import (
	"fmt"
	"sync"
	"time"
)

// Store is the keyed table of in-flight labelling sessions. Backings must be
// safe for concurrent use.
type Store interface {
	Get(id string) (*Session, bool)

	// Create inserts session under id. Callers build the session before
	// calling so the store never runs caller code under its own lock. If
	// another request created the session concurrently, the existing one is
	// returned and created is false.
	Create(id string, session *Session) (s *Session, created bool, err error)

	Delete(id string)
}

const (
	DefaultMaxSessions = 1024
	DefaultIdleTTL     = time.Hour
)

// MemoryStore holds sessions in a process-local map, bounded by size and by
// idle time: sessions untouched for longer than the TTL are reclaimed, and
// when the table is full the least recently used session is evicted.
type MemoryStore struct {
	lock     sync.Mutex
	sessions map[string]*Session
	maxSize  int
	idleTTL  time.Duration
}

func NewMemoryStore(maxSize int, idleTTL time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSessions
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	return &MemoryStore{
		sessions: make(map[string]*Session),
		maxSize:  maxSize,
		idleTTL:  idleTTL,
	}
}

func (store *MemoryStore) Get(id string) (*Session, bool) {
	store.lock.Lock()
	defer store.lock.Unlock()

	session, ok := store.sessions[id]
	return session, ok
}

func (store *MemoryStore) Create(id string, session *Session) (*Session, bool, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	if existing, ok := store.sessions[id]; ok {
		return existing, false, nil
	}

	store.evictIdleLocked()
	if len(store.sessions) >= store.maxSize {
		store.evictOldestLocked()
	}
	if len(store.sessions) >= store.maxSize {
		return nil, false, fmt.Errorf("session table is full (%d sessions)", store.maxSize)
	}

	store.sessions[id] = session
	return session, true, nil
}

func (store *MemoryStore) Delete(id string) {
	store.lock.Lock()
	defer store.lock.Unlock()

	delete(store.sessions, id)
}

func (store *MemoryStore) Len() int {
	store.lock.Lock()
	defer store.lock.Unlock()

	return len(store.sessions)
}

func (store *MemoryStore) evictIdleLocked() {
	deadline := time.Now().Add(-store.idleTTL).UnixNano()
	for id, session := range store.sessions {
		if session.lastAccessed.Load() < deadline {
			delete(store.sessions, id)
		}
	}
}

func (store *MemoryStore) evictOldestLocked() {
	oldestId := ""
	var oldestTime int64
	for id, session := range store.sessions {
		if t := session.lastAccessed.Load(); oldestId == "" || t < oldestTime {
			oldestId = id
			oldestTime = t
		}
	}

	if oldestId != "" {
		delete(store.sessions, oldestId)
	}
}
