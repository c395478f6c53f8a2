package app

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig is returned by LoadConfig for inconsistent settings.
var ErrConfig = errors.New("invalid app config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// Empty selects the in-memory stores.
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBAutoMigrate bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, GS_AUTH_KEY_WRAP_HEX must hold a valid 32-byte KEK.
	RequireKeyWrap bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:  EnvString("GS_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("GS_LOG_LEVEL", "info"),
		LogFormat: EnvString("GS_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("GS_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GS_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GS_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GS_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("GS_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("GS_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL:   EnvString("GS_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("GS_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("GS_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("GS_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("GS_READINESS_REQUIRE_DB", false),
		RequireKeyWrap:     EnvBool("GS_REQUIRE_KEY_WRAP", false),
	}

	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("%w: GS_DB_MIN_CONNS(%d) > GS_DB_MAX_CONNS(%d)", ErrConfig, cfg.DBMinConns, cfg.DBMaxConns)
	}
	switch cfg.LogFormat {
	case "json", "pretty":
	default:
		return Config{}, fmt.Errorf("%w: GS_LOG_FORMAT must be json or pretty, got %q", ErrConfig, cfg.LogFormat)
	}
	return cfg, nil
}
