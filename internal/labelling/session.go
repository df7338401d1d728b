package labelling

import (
	"sync"
	"sync/atomic"
	"time"

	"mlserve-backend/internal/dataset"
)

// Session wraps one resumable labelling computation and its turn-taking
// state. All operations against a session are serialized with its own lock,
// so concurrent requests for the same session id never advance the
// computation twice; sessions never block each other.
type Session struct {
	mu sync.Mutex

	id          string
	computation dataset.Computation

	awaitingSubmission bool
	complete           bool

	// Read by the store's eviction scans without holding the session lock,
	// so it is atomic (unix nanos).
	lastAccessed atomic.Int64
}

func NewSession(id string, computation dataset.Computation) *Session {
	s := &Session{
		id:          id,
		computation: computation,
	}
	s.touch()
	return s
}

func (s *Session) Id() string { return s.id }

func (s *Session) touch() {
	s.lastAccessed.Store(time.Now().UnixNano())
}
