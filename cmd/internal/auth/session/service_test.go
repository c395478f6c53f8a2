package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type countingObserver struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func (o *countingObserver) ObserveSession(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[Outcome]int{}
	}
	o.counts[out]++
}

func (o *countingObserver) get(out Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[out]
}

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(cfg, store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestIssueOrRotate_TwiceLeavesOneLiveRecord(t *testing.T) {
	svc, store := newTestService(t, DefaultConfig())
	ctx := context.Background()

	first, err := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	if err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	second, err := svc.IssueOrRotate(ctx, t0.Add(time.Second), "alice", "d1")
	if err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	if n := store.LiveCount("alice", "d1"); n != 1 {
		t.Fatalf("expected 1 live record, got %d", n)
	}
	old, ok := store.Get(first.RecordID)
	if !ok || !old.Revoked || old.RevokedAt == nil {
		t.Fatalf("expected first record revoked, got %+v", old)
	}
	live, err := store.FindNonRevoked(ctx, "alice", "d1")
	if err != nil || live.ID != second.RecordID {
		t.Fatalf("expected second record live, got %v %v", live.ID, err)
	}

	if _, err := svc.ValidateOrRefresh(ctx, t0.Add(2*time.Second), "alice", "d1", first.AccessToken, first.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("first pair must be dead, got %v", err)
	}
}

func TestIssueOrRotate_Shape(t *testing.T) {
	svc, store := newTestService(t, DefaultConfig())

	out, err := svc.IssueOrRotate(context.Background(), t0, "alice", "d1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !out.AccessExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("access exp: %v", out.AccessExpiresAt)
	}
	if !out.RefreshExpiresAt.Equal(t0.Add(14 * 24 * time.Hour)) {
		t.Fatalf("refresh exp: %v", out.RefreshExpiresAt)
	}
	if len(out.RecordID) != 26 {
		t.Fatalf("expected ULID record id, got %q", out.RecordID)
	}

	rec, _ := store.Get(out.RecordID)
	if len(rec.Key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(rec.Key))
	}
	if strings.Contains(rec.Ciphertext, out.RefreshToken) {
		t.Fatalf("refresh value must not be stored in plaintext")
	}
}

func TestIssueOrRotate_ClampsAccessToRefreshExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshTTL = 20 * time.Minute
	svc, _ := newTestService(t, cfg)

	out, err := svc.IssueOrRotate(context.Background(), t0, "alice", "d1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !out.AccessExpiresAt.Equal(out.RefreshExpiresAt) {
		t.Fatalf("access exp %v must be clamped to refresh exp %v", out.AccessExpiresAt, out.RefreshExpiresAt)
	}
}

func TestIssueOrRotate_RejectsEmptyIDs(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	if _, err := svc.IssueOrRotate(context.Background(), t0, "", "d1"); !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("expected ErrIssuanceFailed, got %v", err)
	}
	if _, err := svc.IssueOrRotate(context.Background(), t0, "alice", " "); !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("expected ErrIssuanceFailed, got %v", err)
	}
}

// Scenario A: a fresh pair is returned unchanged.
func TestValidateOrRefresh_FreshPairUnchanged(t *testing.T) {
	obs := &countingObserver{}
	svc, _ := newTestService(t, DefaultConfig(), WithObserver(obs))
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	res, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Rotated {
		t.Fatalf("fresh pair must not rotate")
	}
	if res.AccessToken != issued.AccessToken || res.RefreshToken != issued.RefreshToken {
		t.Fatalf("fresh pair must be returned unchanged")
	}
	if !res.ExpiresAt.Equal(issued.AccessExpiresAt) {
		t.Fatalf("expires_at mismatch: %v vs %v", res.ExpiresAt, issued.AccessExpiresAt)
	}
	if obs.get(OutcomeIssued) != 1 || obs.get(OutcomeFresh) != 1 {
		t.Fatalf("observer counts: %+v", obs.counts)
	}
}

// Scenario B: an expired access token rotates the pair and kills the old one.
func TestValidateOrRefresh_ExpiredAccessRotates(t *testing.T) {
	svc, store := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	later := t0.Add(31 * time.Minute)

	res, err := svc.ValidateOrRefresh(ctx, later, "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Rotated {
		t.Fatalf("expected rotation")
	}
	if res.AccessToken == issued.AccessToken || res.RefreshToken == issued.RefreshToken {
		t.Fatalf("rotation must produce a new pair")
	}
	if !res.ExpiresAt.Equal(later.Add(30 * time.Minute)) {
		t.Fatalf("new expiry: %v", res.ExpiresAt)
	}

	old, _ := store.Get(issued.RecordID)
	if !old.Revoked {
		t.Fatalf("old record must be revoked")
	}
	if store.LiveCount("alice", "d1") != 1 {
		t.Fatalf("expected exactly one live record")
	}

	if _, err := svc.ValidateOrRefresh(ctx, later, "alice", "d1", issued.AccessToken, issued.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("old pair must be rejected, got %v", err)
	}

	again, err := svc.ValidateOrRefresh(ctx, later.Add(time.Minute), "alice", "d1", res.AccessToken, res.RefreshToken)
	if err != nil || again.Rotated {
		t.Fatalf("new pair should be fresh, rotated=%v err=%v", again.Rotated, err)
	}
}

func TestValidateOrRefresh_NearExpiryRotates(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	res, err := svc.ValidateOrRefresh(ctx, t0.Add(25*time.Minute), "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Rotated {
		t.Fatalf("5 minutes left is inside the refresh window; expected rotation")
	}
}

func TestValidateOrRefresh_GarbageAccessRotates(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	res, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d1", "not-a-token", issued.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Rotated {
		t.Fatalf("expected rotation for an unverifiable access token")
	}
}

// Scenario C: after logout the pair is rejected.
func TestLogout_ThenValidateRejected(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	if err := svc.Logout(ctx, t0, "d1", issued.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d1", issued.AccessToken, issued.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after logout, got %v", err)
	}
	if err := svc.Logout(ctx, t0, "d1", issued.RefreshToken); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("second logout: expected ErrRecordNotFound, got %v", err)
	}
}

// Scenario D: devices hold independent records.
func TestDevicesAreIndependent(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	d1, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	d2, _ := svc.IssueOrRotate(ctx, t0, "alice", "d2")

	if err := svc.Logout(ctx, t0, "d1", d1.RefreshToken); err != nil {
		t.Fatalf("logout d1: %v", err)
	}
	res, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d2", d2.AccessToken, d2.RefreshToken)
	if err != nil || res.Rotated {
		t.Fatalf("d2 should be unaffected, rotated=%v err=%v", res.Rotated, err)
	}

	// d2's refresh value is not accepted on d1.
	if _, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d1", d2.AccessToken, d2.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("cross-device pair must be rejected, got %v", err)
	}
}

func TestValidateOrRefresh_RecordExpiredOneSecondAgo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshTTL = time.Hour
	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	if _, err := svc.ValidateOrRefresh(ctx, t0.Add(time.Hour+time.Second), "alice", "d1", issued.AccessToken, issued.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for expired record, got %v", err)
	}
	if _, err := svc.ValidateOrRefresh(ctx, t0.Add(time.Hour), "alice", "d1", issued.AccessToken, issued.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expiry equal to now must be rejected, got %v", err)
	}
}

func TestValidateOrRefresh_Rejections(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	cases := []struct {
		name                      string
		user, device, acc, refres string
	}{
		{"wrong refresh", "alice", "d1", issued.AccessToken, "bogus"},
		{"empty refresh", "alice", "d1", issued.AccessToken, ""},
		{"unknown device", "alice", "d9", issued.AccessToken, issued.RefreshToken},
		{"other user on device", "mallory", "d1", issued.AccessToken, issued.RefreshToken},
		{"empty user", "", "d1", issued.AccessToken, issued.RefreshToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ValidateOrRefresh(ctx, t0, tc.user, tc.device, tc.acc, tc.refres); !errors.Is(err, ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestValidateOrRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	svc, store := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	later := t0.Add(31 * time.Minute)

	const n = 16
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ValidateOrRefresh(ctx, later, "alice", "d1", issued.AccessToken, issued.RefreshToken)
			switch {
			case err == nil && res.Rotated:
				wins.Add(1)
			case errors.Is(err, ErrInvalidSession):
				rejected.Add(1)
			default:
				t.Errorf("unexpected result rotated=%v err=%v", res.Rotated, err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || rejected.Load() != n-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d/%d", n-1, wins.Load(), rejected.Load())
	}
	if store.LiveCount("alice", "d1") != 1 {
		t.Fatalf("expected exactly one live record")
	}
}

func TestAuthorize_DoesNotRotate(t *testing.T) {
	svc, store := newTestService(t, DefaultConfig())
	ctx := context.Background()

	issued, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")

	rec, err := svc.Authorize(ctx, t0.Add(29*time.Minute), "alice", "d1", issued.RefreshToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if rec.ID != issued.RecordID {
		t.Fatalf("record mismatch")
	}
	if live, _ := store.FindNonRevoked(ctx, "alice", "d1"); live.ID != issued.RecordID {
		t.Fatalf("authorize must not rotate")
	}
	if _, err := svc.Authorize(ctx, t0, "bob", "d1", issued.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for other user, got %v", err)
	}
}

func TestRevokeOtherDevices(t *testing.T) {
	svc, _ := newTestService(t, DefaultConfig())
	ctx := context.Background()

	d1, _ := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	d2, _ := svc.IssueOrRotate(ctx, t0, "alice", "d2")
	d3, _ := svc.IssueOrRotate(ctx, t0, "alice", "d3")
	bob, _ := svc.IssueOrRotate(ctx, t0, "bob", "d2")

	n, err := svc.RevokeOtherDevices(ctx, t0, "alice", "d1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d err=%v", n, err)
	}
	if _, err := svc.Authorize(ctx, t0, "alice", "d1", d1.RefreshToken); err != nil {
		t.Fatalf("kept device must survive: %v", err)
	}
	for _, p := range []Issued{d2, d3} {
		if _, err := svc.Authorize(ctx, t0, "alice", p.DeviceID, p.RefreshToken); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("%s should be revoked, got %v", p.DeviceID, err)
		}
	}
	if _, err := svc.Authorize(ctx, t0, "bob", "d2", bob.RefreshToken); err != nil {
		t.Fatalf("other user must be unaffected: %v", err)
	}
}

func TestJWTFormat_RotationBehavesTheSame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccessTokenFormat = FormatJWT
	cfg.JWTSecret = strings.Repeat("z", 32)
	svc, store := newTestService(t, cfg)
	ctx := context.Background()

	issued, err := svc.IssueOrRotate(ctx, t0, "alice", "d1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := svc.ValidateOrRefresh(ctx, t0, "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil || res.Rotated {
		t.Fatalf("fresh jwt pair: rotated=%v err=%v", res.Rotated, err)
	}

	res, err = svc.ValidateOrRefresh(ctx, t0.Add(31*time.Minute), "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if err != nil || !res.Rotated {
		t.Fatalf("expired jwt pair should rotate: rotated=%v err=%v", res.Rotated, err)
	}
	if store.LiveCount("alice", "d1") != 1 {
		t.Fatalf("expected one live record")
	}
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) UpsertRefreshRecord(context.Context, Record) error { return f.err }

func (f failingStore) RotateRefreshRecord(context.Context, string, Record) error { return f.err }

func TestStoreFailuresSurfaceAsIssuanceFailed(t *testing.T) {
	boom := errors.New("db down")
	mem := NewMemoryStore()
	svc, err := NewService(DefaultConfig(), failingStore{MemoryStore: mem, err: boom})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	_, err = svc.IssueOrRotate(ctx, t0, "alice", "d1")
	if !errors.Is(err, ErrIssuanceFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrIssuanceFailed wrapping cause, got %v", err)
	}

	// Seed a record directly so validation reaches the rotation step.
	good, _ := NewService(DefaultConfig(), mem)
	issued, _ := good.IssueOrRotate(ctx, t0, "alice", "d1")

	_, err = svc.ValidateOrRefresh(ctx, t0.Add(31*time.Minute), "alice", "d1", issued.AccessToken, issued.RefreshToken)
	if !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("expected ErrIssuanceFailed from rotation, got %v", err)
	}
}
