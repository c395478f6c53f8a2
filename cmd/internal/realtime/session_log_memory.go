package realtime

import (
	"context"
	"sync"
	"time"
)

// MemorySessionLogStore is an in-process SessionLogStore.
type MemorySessionLogStore struct {
	mu   sync.Mutex
	rows map[string]SessionLog
}

var _ SessionLogStore = (*MemorySessionLogStore)(nil)

func NewMemorySessionLogStore() *MemorySessionLogStore {
	return &MemorySessionLogStore{rows: make(map[string]SessionLog)}
}

func (s *MemorySessionLogStore) Insert(ctx context.Context, l SessionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.rows[l.SessionID]; dup {
		return ErrInternal
	}
	s.rows[l.SessionID] = l
	return nil
}

func (s *MemorySessionLogStore) FindOpen(ctx context.Context, sessionID string) (SessionLog, error) {
	if err := ctx.Err(); err != nil {
		return SessionLog{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[sessionID]
	if !ok || l.SessionEnd != nil {
		return SessionLog{}, ErrSessionLogNotFound
	}
	return l, nil
}

func (s *MemorySessionLogStore) EndSession(ctx context.Context, sessionID string, end time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[sessionID]
	if !ok || l.SessionEnd != nil {
		return ErrSessionLogNotFound
	}
	end = end.UTC()
	l.SessionEnd = &end
	s.rows[sessionID] = l
	return nil
}

// Get returns a row regardless of state.
func (s *MemorySessionLogStore) Get(sessionID string) (SessionLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[sessionID]
	return l, ok
}

// Len returns the number of rows.
func (s *MemorySessionLogStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
