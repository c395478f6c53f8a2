package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single mutex serialises every
// operation, which makes upsert and rotation trivially atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) FindNonRevokedByDevice(ctx context.Context, deviceID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, r := range s.records {
		if !r.Revoked && r.DeviceID == deviceID {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindNonRevoked(ctx context.Context, userID, deviceID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.liveLocked(userID, deviceID); ok {
		return cloneRecord(r), nil
	}
	return Record{}, ErrRecordNotFound
}

func (s *MemoryStore) UpsertRefreshRecord(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.liveLocked(rec.UserID, rec.DeviceID); ok {
		s.revokeLocked(prev, rec.CreatedAt)
	}
	rec.Revoked = false
	rec.RevokedAt = nil
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) RotateRefreshRecord(ctx context.Context, revokeID string, next Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[revokeID]
	if !ok || prev.Revoked {
		return ErrRecordNotFound
	}
	s.revokeLocked(prev, next.CreatedAt)
	next.Revoked = false
	next.RevokedAt = nil
	s.records[next.ID] = cloneRecord(next)
	return nil
}

func (s *MemoryStore) RevokeRefreshRecord(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Revoked {
		return ErrRecordNotFound
	}
	s.revokeLocked(r, now)
	return nil
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID, exceptDeviceID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.records {
		if r.Revoked || r.UserID != userID {
			continue
		}
		if exceptDeviceID != "" && r.DeviceID == exceptDeviceID {
			continue
		}
		s.revokeLocked(r, now)
		n++
	}
	return n, nil
}

// Get returns any record by id, live or revoked.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return cloneRecord(r), ok
}

// LiveCount returns the number of non-revoked records for the pair.
func (s *MemoryStore) LiveCount(userID, deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if !r.Revoked && r.UserID == userID && r.DeviceID == deviceID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) liveLocked(userID, deviceID string) (Record, bool) {
	for _, r := range s.records {
		if !r.Revoked && r.UserID == userID && r.DeviceID == deviceID {
			return r, true
		}
	}
	return Record{}, false
}

func (s *MemoryStore) revokeLocked(r Record, at time.Time) {
	at = at.UTC()
	r.Revoked = true
	r.RevokedAt = &at
	s.records[r.ID] = r
}

func cloneRecord(r Record) Record {
	r.Key = append([]byte(nil), r.Key...)
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		r.RevokedAt = &t
	}
	return r
}
