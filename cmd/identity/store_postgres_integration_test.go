package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dwbrown115/GameServer/cmd/internal/pgtest"
)

func TestPostgresStore_UsernameConflict_CaseInsensitive(t *testing.T) {
	pool, schema := pgtest.Open(t)
	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	svc, err := NewService(store, cheapHasher(), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	now := time.Now().UTC()

	u, err := svc.Register(ctx, "Navid", "pw-strong-1", now)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "nAvId", "pw-strong-2", now); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := svc.Authenticate(ctx, "NAVID", "pw-strong-1", now)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id mismatch")
	}
}

func TestPostgresStore_UpdatesAndNotFound(t *testing.T) {
	pool, schema := pgtest.Open(t)
	store, _ := NewPostgresStore(pool, WithSchema(schema))
	svc, _ := NewService(store, cheapHasher(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	now := time.Now().UTC()

	a, _ := svc.Register(ctx, "first", "pw-first", now)
	if _, err := svc.Register(ctx, "second", "pw-second", now); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.ChangeUsername(ctx, a.ID, "SECOND", now); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if err := svc.ChangePassword(ctx, a.ID, "pw-first", "pw-third", now); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := store.FindByID(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.UpdatePassword(ctx, "missing", "h", "s", now); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
