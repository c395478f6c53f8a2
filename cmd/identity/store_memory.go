package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]User
	byNorm map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]User),
		byNorm: make(map[string]string),
	}
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return User{}, OpError{Op: "identity.FindByUsername", Kind: ErrNotFound}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, OpError{Op: "identity.FindByID", Kind: ErrNotFound}
	}
	return u, nil
}

func (s *MemoryStore) Insert(ctx context.Context, u User) error {
	const op = "identity.Insert"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[u.UsernameNorm]; taken {
		return ConflictError{Op: op, Field: "username"}
	}
	if _, dup := s.byID[u.ID]; dup {
		return ConflictError{Op: op, Field: "id"}
	}
	s.byID[u.ID] = u
	s.byNorm[u.UsernameNorm] = u.ID
	return nil
}

func (s *MemoryStore) UpdateUsername(ctx context.Context, id, username string, now time.Time) error {
	const op = "identity.UpdateUsername"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	norm := NormalizeUsername(username)
	if owner, taken := s.byNorm[norm]; taken && owner != id {
		return ConflictError{Op: op, Field: "username"}
	}

	delete(s.byNorm, u.UsernameNorm)
	u.Username = username
	u.UsernameNorm = norm
	u.UpdatedAt = now
	s.byID[id] = u
	s.byNorm[norm] = id
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id, hash, salt string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return OpError{Op: "identity.UpdatePassword", Kind: ErrNotFound}
	}
	u.PasswordHash = hash
	u.PasswordSalt = salt
	u.UpdatedAt = now
	s.byID[id] = u
	return nil
}
