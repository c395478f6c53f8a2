package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AccessTokenFormat selects the access-token codec.
type AccessTokenFormat string

const (
	// FormatPaseto issues PASETO v4.local tokens under each record's key.
	FormatPaseto AccessTokenFormat = "paseto"
	// FormatJWT issues HS256 JWTs under a process-wide secret.
	FormatJWT AccessTokenFormat = "jwt"
)

const minJWTSecretLen = 32

// Config defines the runtime configuration of the session subsystem.
type Config struct {
	// Issuer is the "iss" claim of access tokens.
	Issuer string

	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration

	// RefreshWindow is how close to expiry an access token may get before
	// ValidateOrRefresh rotates the pair.
	RefreshWindow time.Duration

	// ClockSkew moves the verification instant forward to tolerate clients
	// whose clocks run slightly ahead.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of refresh values.
	RefreshTokenBytes int

	AccessTokenFormat AccessTokenFormat

	// JWTSecret signs legacy tokens. Required when AccessTokenFormat is FormatJWT.
	JWTSecret string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:            "gameserver",
		AccessTokenTTL:    30 * time.Minute,
		RefreshTTL:        14 * 24 * time.Hour,
		RefreshWindow:     10 * time.Minute,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
		AccessTokenFormat: FormatPaseto,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - GS_AUTH_ISSUER
//   - GS_AUTH_ACCESS_TTL
//   - GS_AUTH_REFRESH_TTL
//   - GS_AUTH_REFRESH_WINDOW
//   - GS_AUTH_CLOCK_SKEW
//   - GS_AUTH_REFRESH_TOKEN_BYTES
//   - GS_AUTH_ACCESS_TOKEN_FORMAT (paseto|jwt)
//   - GS_AUTH_JWT_SECRET (required for jwt)
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("GS_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		allowNil bool
	}{
		{"GS_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"GS_AUTH_REFRESH_TTL", &cfg.RefreshTTL, false},
		{"GS_AUTH_REFRESH_WINDOW", &cfg.RefreshWindow, true},
		{"GS_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowNil) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfig, d.key)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("GS_AUTH_REFRESH_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, fmt.Errorf("%w: GS_AUTH_REFRESH_TOKEN_BYTES", ErrConfig)
		}
		cfg.RefreshTokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("GS_AUTH_ACCESS_TOKEN_FORMAT")); v != "" {
		cfg.AccessTokenFormat = AccessTokenFormat(strings.ToLower(v))
	}
	cfg.JWTSecret = os.Getenv("GS_AUTH_JWT_SECRET")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	switch {
	case c.AccessTokenTTL <= 0 || c.RefreshTTL <= 0:
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	case c.RefreshWindow >= c.AccessTokenTTL:
		return fmt.Errorf("%w: refresh window must be shorter than access ttl", ErrConfig)
	case c.RefreshTokenBytes < 16:
		return fmt.Errorf("%w: refresh token bytes", ErrConfig)
	}

	switch c.AccessTokenFormat {
	case FormatPaseto:
	case FormatJWT:
		if len(c.JWTSecret) < minJWTSecretLen {
			return fmt.Errorf("%w: GS_AUTH_JWT_SECRET must be at least %d bytes", ErrConfig, minJWTSecretLen)
		}
	default:
		return fmt.Errorf("%w: unknown access token format %q", ErrConfig, c.AccessTokenFormat)
	}
	return nil
}
