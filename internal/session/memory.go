package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryThread is the store-owned state for one thread. The mutex serializes
// appends to this thread only; no lock is shared across threads.
type memoryThread struct {
	mu      sync.Mutex
	session Session
}

func (t *memoryThread) snapshot() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := t.session
	copied.Turns = append([]Turn(nil), t.session.Turns...)
	return &copied
}

// MemoryStore implements Store with an in-process map. Suitable for a
// single-instance deployment; use the redis backend to share threads
// across instances.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
}

// NewMemoryStore creates an empty in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*memoryThread),
	}
}

// threadKey builds the composite (userID, threadID) key. The NUL separator
// cannot appear in either part, so keys for different users never collide.
func threadKey(userID, threadID string) string {
	return userID + "\x00" + threadID
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(ctx context.Context, userID, threadID string) (*Session, bool, error) {
	if threadID != "" {
		s.mu.RLock()
		t, ok := s.threads[threadKey(userID, threadID)]
		s.mu.RUnlock()
		if ok {
			return t.snapshot(), false, nil
		}
	}

	// Unknown or absent thread ID: start a fresh thread for this user.
	now := time.Now()
	created := &memoryThread{
		session: Session{
			ThreadID:    uuid.NewString(),
			OwnerUserID: userID,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		},
	}

	s.mu.Lock()
	s.threads[threadKey(userID, created.session.ThreadID)] = created
	s.mu.Unlock()

	return created.snapshot(), true, nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, userID, threadID string, userTurn, modelTurn Turn) error {
	s.mu.RLock()
	t, ok := s.threads[threadKey(userID, threadID)]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.Turns = append(t.session.Turns, userTurn, modelTurn)
	t.session.UpdatedAt = time.Now()
	t.session.Version++
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = nil
	return nil
}
