package session

import (
	"context"
	"sync"
)

// MemoryRepository keeps sessions in a process-local map. It backs tests and
// serves as the failover target when Redis is down; sessions held only here
// do not survive a restart, which the role router's fallback heuristic
// exists to absorb.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[int64]*Session
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[int64]*Session)}
}

func (r *MemoryRepository) Get(ctx context.Context, userID int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.m[userID]
	if !ok {
		return nil, nil
	}
	return copySession(sess), nil
}

func (r *MemoryRepository) Set(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.UserID] = copySession(s)
	return nil
}

func (r *MemoryRepository) Clear(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, userID)
	return nil
}

func copySession(s *Session) *Session {
	out := &Session{UserID: s.UserID, State: s.State, Payload: make(map[string]string, len(s.Payload))}
	for k, v := range s.Payload {
		out.Payload[k] = v
	}
	return out
}
