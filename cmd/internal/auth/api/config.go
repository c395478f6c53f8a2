package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and abuse limits.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Sliding window applied to failed logins per client IP and per username.
	LoginMax    int
	LoginWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

// DefaultConfig returns the values used when no env is set.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:           64 << 10,
		LoginMax:               20,
		LoginWindow:            5 * time.Minute,
		LockoutShortThreshold:  5,
		LockoutShortDuration:   time.Minute,
		LockoutLongThreshold:   10,
		LockoutLongDuration:    15 * time.Minute,
		LockoutSevereThreshold: 20,
		LockoutSevereDuration:  time.Hour,
	}
}

// LoadConfigFromEnv loads auth API config from GS_AUTH_* variables.
// Invalid values keep the default.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		TrustProxy:             envBool("GS_AUTH_TRUST_PROXY", d.TrustProxy),
		MaxBodyBytes:           envInt64("GS_AUTH_MAX_BODY_BYTES", d.MaxBodyBytes),
		LoginMax:               envInt("GS_AUTH_LOGIN_MAX", d.LoginMax),
		LoginWindow:            envDuration("GS_AUTH_LOGIN_WINDOW", d.LoginWindow),
		LockoutShortThreshold:  envInt("GS_AUTH_LOCKOUT_SHORT_THRESHOLD", d.LockoutShortThreshold),
		LockoutShortDuration:   envDuration("GS_AUTH_LOCKOUT_SHORT_DURATION", d.LockoutShortDuration),
		LockoutLongThreshold:   envInt("GS_AUTH_LOCKOUT_LONG_THRESHOLD", d.LockoutLongThreshold),
		LockoutLongDuration:    envDuration("GS_AUTH_LOCKOUT_LONG_DURATION", d.LockoutLongDuration),
		LockoutSevereThreshold: envInt("GS_AUTH_LOCKOUT_SEVERE_THRESHOLD", d.LockoutSevereThreshold),
		LockoutSevereDuration:  envDuration("GS_AUTH_LOCKOUT_SEVERE_DURATION", d.LockoutSevereDuration),
	}
}

func (c Config) lockoutTiers() []lockoutTier {
	return []lockoutTier{
		{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration},
		{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration},
		{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration},
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
