package realtime

import (
	"time"

	"github.com/dwbrown115/GameServer/cmd/identity/ids"
)

// NewSessionID returns a ULID used as the realtime session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
