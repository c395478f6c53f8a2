package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 60 * time.Second

	// Native game clients send no Origin header, so it is optional by default.
	// When present it must be on the allowlist.
	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// GatewayConfig tunes the WebSocket gateway.
type GatewayConfig struct {
	// DevInsecure disables the library's own origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns the defaults used when no env is set.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// GatewayConfigFromEnv overlays GS_WS_* variables on the defaults.
// Invalid values keep the default.
func GatewayConfigFromEnv() GatewayConfig {
	c := DefaultGatewayConfig()

	c.DevInsecure = envBoolWS("GS_WS_DEV_INSECURE", false)
	c.OriginRequired = envBoolWS("GS_WS_ORIGIN_REQUIRED", c.OriginRequired)
	if raw := strings.TrimSpace(os.Getenv("GS_WS_ALLOWED_ORIGINS")); raw != "" {
		c.AllowedOrigins = splitCSV(raw)
	}

	c.WriteTimeout = envDurationWS("GS_WS_WRITE_TIMEOUT", c.WriteTimeout)
	c.ReadIdleTimeout = envDurationWS("GS_WS_READ_IDLE_TIMEOUT", c.ReadIdleTimeout)
	c.SendQueueSize = max(envIntWS("GS_WS_SEND_QUEUE", c.SendQueueSize), wsMinSendQueueSize)

	c.HeartbeatEvery = envDurationWS("GS_WS_HEARTBEAT_INTERVAL", c.HeartbeatEvery)
	c.HeartbeatTimeout = envDurationWS("GS_WS_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)

	c.RateEvents = envIntWS("GS_WS_RATE_EVENTS", c.RateEvents)
	c.RateWindow = envDurationWS("GS_WS_RATE_WINDOW", c.RateWindow)
	return c
}

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
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

func envDurationWS(key string, def time.Duration) time.Duration {
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

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
