package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dwbrown115/GameServer/cmd/security/token"
)

func TestPasetoV4Local_IssueAndVerify(t *testing.T) {
	codec, err := NewAccessCodec(DefaultConfig())
	if err != nil {
		t.Fatalf("NewAccessCodec: %v", err)
	}
	key, _ := token.NewKey()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(30 * time.Minute)

	tok, err := codec.Issue(key, "user-1", "device-1", now, exp)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(tok, "v4.local.") {
		t.Fatalf("expected v4.local token, got %q", tok[:12])
	}

	claims, err := codec.Verify(key, tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.DeviceID != "device-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("exp mismatch: %v vs %v", claims.ExpiresAt, exp)
	}
}

func TestPasetoV4Local_RejectsOtherKeyAndExpiry(t *testing.T) {
	codec, _ := NewAccessCodec(DefaultConfig())
	keyA, _ := token.NewKey()
	keyB, _ := token.NewKey()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tok, _ := codec.Issue(keyA, "user-1", "device-1", now, now.Add(30*time.Minute))

	if _, err := codec.Verify(keyB, tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken under another key, got %v", err)
	}
	if _, err := codec.Verify(keyA, tok, now.Add(31*time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after exp, got %v", err)
	}
	if _, err := codec.Verify(keyA, "v4.local.garbage", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestJWTHS256_IssueAndVerify(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccessTokenFormat = FormatJWT
	cfg.JWTSecret = strings.Repeat("k", 32)

	codec, err := NewAccessCodec(cfg)
	if err != nil {
		t.Fatalf("NewAccessCodec: %v", err)
	}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(30 * time.Minute)

	tok, err := codec.Issue(nil, "user-1", "device-1", now, exp)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Verify(nil, tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.DeviceID != "device-1" || !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if _, err := codec.Verify(nil, tok, now.Add(31*time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after exp, got %v", err)
	}

	other := cfg
	other.JWTSecret = strings.Repeat("x", 32)
	otherCodec, _ := NewAccessCodec(other)
	if _, err := otherCodec.Verify(nil, tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken under another secret, got %v", err)
	}
}
