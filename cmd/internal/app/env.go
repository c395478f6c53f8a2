package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// The GS_* settings are read through these helpers. A blank value or one the
// helper rejects yields the default.

// EnvString returns the trimmed value of key, or def when blank.
func EnvString(key, def string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return def
}

// EnvBool accepts the strconv.ParseBool spellings (1, t, true, 0, f, false...).
func EnvBool(key string, def bool) bool {
	return envParsed(key, def, strconv.ParseBool, nil)
}

// EnvInt reads a strictly positive int (sizes and limits).
func EnvInt(key string, def int) int {
	return envParsed(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt32 reads a non-negative int32. Pool sizes use it; zero is allowed
// for GS_DB_MIN_CONNS.
func EnvInt32(key string, def int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envParsed(key, def, parse, func(n int32) bool { return n >= 0 })
}

// EnvDuration reads a positive Go duration such as "15s" or "2m".
func EnvDuration(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envParsed[T any](key string, def T, parse func(string) (T, error), valid func(T) bool) T {
	raw, ok := lookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil || (valid != nil && !valid(v)) {
		return def
	}
	return v
}
