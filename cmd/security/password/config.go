package password

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ErrConfig is returned by FromEnv for out-of-range values.
var ErrConfig = errors.New("invalid password config")

// Argon2idParams controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords, counted in runes.
type Policy struct {
	MinLength int
	MaxLength int
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login Argon2id costs and a permissive
// length policy; game clients historically allowed short passwords.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  24,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 3,
			MaxLength: 256,
		},
	}
}

// FromEnv overlays environment variables on DefaultConfig.
//
//   - GS_PASSWORD_MIN_LEN, GS_PASSWORD_MAX_LEN
//   - GS_ARGON2_MEMORY_KIB, GS_ARGON2_ITERATIONS, GS_ARGON2_PARALLELISM
//   - GS_ARGON2_SALT_LEN, GS_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max uint64
		set      func(uint64)
	}{
		{"GS_PASSWORD_MIN_LEN", 1, 1024, func(v uint64) { cfg.Policy.MinLength = int(v) }},
		{"GS_PASSWORD_MAX_LEN", 1, 4096, func(v uint64) { cfg.Policy.MaxLength = int(v) }},
		{"GS_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(v uint64) { cfg.Params.MemoryKiB = uint32(v) }},
		{"GS_ARGON2_ITERATIONS", 1, 20, func(v uint64) { cfg.Params.Iterations = uint32(v) }},
		{"GS_ARGON2_PARALLELISM", 1, 64, func(v uint64) { cfg.Params.Parallelism = uint8(v) }},
		{"GS_ARGON2_SALT_LEN", 8, 64, func(v uint64) { cfg.Params.SaltLength = uint32(v) }},
		{"GS_ARGON2_KEY_LEN", 16, 64, func(v uint64) { cfg.Params.KeyLength = uint32(v) }},
	}

	for _, it := range ints {
		raw, ok := os.LookupEnv(it.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil || n < it.min || n > it.max {
			return Config{}, fmt.Errorf("%w: %s out of range [%d..%d]", ErrConfig, it.key, it.min, it.max)
		}
		it.set(n)
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("%w: min_len(%d) > max_len(%d)", ErrConfig, cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}
