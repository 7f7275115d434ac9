package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart
// and not shared between instances; use RedisStore for that.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type memoryEntry struct {
	data      Session
	expiresAt time.Time
}

// NewMemoryStore creates a store that sweeps expired sessions every interval
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]memoryEntry),
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		s.wg.Add(1)
		go s.cleanup(interval)
	}
	return s
}

// Get returns a copy of the stored session
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}

	sess := entry.data
	sess.Flashes = append([]Flash(nil), entry.data.Flashes...)
	return &sess, nil
}

// Set stores a copy of sess
func (s *MemoryStore) Set(ctx context.Context, sess *Session, ttl time.Duration) error {
	data := *sess
	data.Flashes = append([]Flash(nil), sess.Flashes...)
	data.dirty, data.isNew = false, false

	s.mu.Lock()
	s.sessions[sess.ID] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a session
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
}
