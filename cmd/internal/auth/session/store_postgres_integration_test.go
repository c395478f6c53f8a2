package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwbrown115/GameServer/cmd/internal/pgtest"
	"github.com/dwbrown115/GameServer/cmd/security/token"
)

func mustSeedUser(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, username, username_norm, password_hash, password_salt)
		 VALUES ($1, $1, $1, 'x', 'x')`, id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func newPostgresService(t *testing.T, opts ...PostgresOption) (*Service, *PostgresStore, *pgxpool.Pool) {
	t.Helper()
	pool, schema := pgtest.Open(t)
	store, err := NewPostgresStore(pool, append([]PostgresOption{WithSchema(schema)}, opts...)...)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	svc, err := NewService(DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	mustSeedUser(t, pool, "alice")
	return svc, store, pool
}

func TestPostgresStore_IssueTwice_OneLive(t *testing.T) {
	svc, store, _ := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	first, err := svc.IssueOrRotate(ctx, now, "alice", "d1")
	if err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	second, err := svc.IssueOrRotate(ctx, now.Add(time.Second), "alice", "d1")
	if err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	live, err := store.FindNonRevoked(ctx, "alice", "d1")
	if err != nil {
		t.Fatalf("FindNonRevoked: %v", err)
	}
	if live.ID != second.RecordID {
		t.Fatalf("expected second record live, got %s", live.ID)
	}
	if err := store.RevokeRefreshRecord(ctx, first.RecordID, now); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("first record must already be revoked, got %v", err)
	}
}

func TestPostgresStore_RotateAndConcurrentLosers(t *testing.T) {
	svc, store, _ := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	issued, err := svc.IssueOrRotate(ctx, now, "alice", "d1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(31 * time.Minute)
	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ValidateOrRefresh(ctx, later, "alice", "d1", issued.AccessToken, issued.RefreshToken)
			if err == nil && res.Rotated {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInvalidSession) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
	recs, err := store.FindNonRevokedByDevice(ctx, "d1")
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one live record, got %d err=%v", len(recs), err)
	}
}

func TestPostgresStore_KeyWrapping(t *testing.T) {
	kek, _ := token.NewKey()
	w, err := token.NewKeyWrapper(kek)
	if err != nil {
		t.Fatalf("NewKeyWrapper: %v", err)
	}
	svc, store, pool := newPostgresService(t, WithKeyWrapper(w))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	issued, err := svc.IssueOrRotate(ctx, now, "alice", "d1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var stored []byte
	if err := pool.QueryRow(ctx, `SELECT key_material FROM refresh_credentials WHERE id = $1`, issued.RecordID).Scan(&stored); err != nil {
		t.Fatalf("read key: %v", err)
	}
	if len(stored) == token.KeySize {
		t.Fatalf("expected wrapped key material, got raw-sized %d bytes", len(stored))
	}

	rec, err := store.FindNonRevoked(ctx, "alice", "d1")
	if err != nil {
		t.Fatalf("FindNonRevoked: %v", err)
	}
	if len(rec.Key) != token.KeySize {
		t.Fatalf("expected unwrapped 32-byte key, got %d", len(rec.Key))
	}

	res, err := svc.ValidateOrRefresh(ctx, now, "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil || res.Rotated {
		t.Fatalf("validate through wrapped key: rotated=%v err=%v", res.Rotated, err)
	}
}

func TestPostgresStore_RevokeAllForUser(t *testing.T) {
	svc, store, _ := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	for _, d := range []string{"d1", "d2", "d3"} {
		if _, err := svc.IssueOrRotate(ctx, now, "alice", d); err != nil {
			t.Fatalf("issue %s: %v", d, err)
		}
	}

	n, err := store.RevokeAllForUser(ctx, "alice", "d2", now)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d err=%v", n, err)
	}
	if _, err := store.FindNonRevoked(ctx, "alice", "d2"); err != nil {
		t.Fatalf("d2 must survive: %v", err)
	}
	if _, err := store.FindNonRevoked(ctx, "alice", "d1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("d1 must be revoked, got %v", err)
	}
}
