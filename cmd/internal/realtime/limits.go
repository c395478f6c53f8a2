package realtime

import "time"

const (
	// Max bytes per websocket frame read (hard limit). Position frames are tiny.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limit. Clients send positions at up to ~30 Hz.
	rateLimitEvents = 600
	rateLimitWindow = 10 * time.Second
)
