package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// loginThrottle remembers recent login failures per key in process memory.
// Keys are "ip:<addr>" and "user:<normalized username>".
type loginThrottle struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	window   time.Duration
	max      int
	tiers    []lockoutTier
	horizon  time.Duration
}

func newLoginThrottle(cfg Config) *loginThrottle {
	tiers := cfg.lockoutTiers()
	horizon := cfg.LoginWindow
	for _, t := range tiers {
		horizon = max(horizon, t.Duration)
	}
	return &loginThrottle{
		failures: make(map[string][]time.Time),
		window:   cfg.LoginWindow,
		max:      cfg.LoginMax,
		tiers:    tiers,
		horizon:  horizon,
	}
}

// check reports whether key is currently blocked and for how long.
// Progressive tiers apply to usernames only.
func (t *loginThrottle) check(key string, userKey bool, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs := t.pruneLocked(key, now)
	if blocked, retry := evaluateWindowThrottle(now, fs, t.max, t.window); blocked {
		return true, retry
	}
	if userKey {
		return evaluateProgressiveLockout(now, fs, t.tiers)
	}
	return false, 0
}

func (t *loginThrottle) fail(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = append(t.pruneLocked(key, now), now)
}

func (t *loginThrottle) reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key)
}

func (t *loginThrottle) pruneLocked(key string, now time.Time) []time.Time {
	fs := t.failures[key]
	cut := now.Add(-t.horizon)
	i := 0
	for i < len(fs) && !fs[i].After(cut) {
		i++
	}
	fs = fs[i:]
	if len(fs) == 0 {
		delete(t.failures, key)
		return nil
	}
	t.failures[key] = fs
	return fs
}

// evaluateWindowThrottle blocks once max failures fall inside window. The
// retry delay runs until the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout checks tiers in order; the first whose threshold
// is reached within its duration locks until duration after the latest failure.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	for _, tier := range tiers {
		if tier.Threshold <= 0 || tier.Duration <= 0 {
			continue
		}
		cut := now.Add(-tier.Duration)
		count := 0
		var latest time.Time
		for _, f := range failures {
			if !f.After(cut) {
				continue
			}
			count++
			if f.After(latest) {
				latest = f
			}
		}
		if count < tier.Threshold {
			continue
		}
		if retry := latest.Add(tier.Duration).Sub(now); retry > 0 {
			return true, retry
		}
	}
	return false, 0
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
