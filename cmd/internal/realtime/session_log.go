package realtime

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionLogNotFound is returned when no open session-log row matches.
	ErrSessionLogNotFound = errors.New("session log not found")

	// ErrInternal marks failures to persist realtime session state.
	ErrInternal = errors.New("internal error")
)

// Telemetry defaults written with every new session log.
const (
	DefaultSyncStatus       = "Initialized"
	DefaultDesyncResolution = "None"
	DefaultLifecycleLog     = "[]"
	DefaultSessionMetadata  = "{}"
	DefaultUnknown          = "Unknown"
)

// SessionLog is the audit row for one realtime session. The telemetry fields
// are opaque to this server; gameplay services fill them in later.
type SessionLog struct {
	SessionID    string
	PlayerID     string
	DeviceID     string
	SessionStart time.Time
	SessionEnd   *time.Time
	DeletionDate *time.Time

	ClientObjCount       *int
	ServerObjCount       *int
	ObjectSyncHash       string
	HashMismatch         *bool
	SyncStatus           string
	DesyncResolution     string
	RadiusEnforced       *bool
	ObjectLifecycleLog   string
	ScoreServer          int
	AttemptedClientScore int
	FakeObjectDetected   *bool
	PickupEventsVerified *int
	SpawnRequests        *int
	ValidatedSpawns      *int
	BlockedSpawns        *int
	SpawnRateFlagged     *bool
	SessionMetadata      string
	Region               string
	GameVersion          string
	Platform             string
	FlaggedForReview     *bool
	AdminNotes           string
}

// NewSessionLog returns an open log row with default telemetry.
func NewSessionLog(sessionID, playerID, deviceID string, start time.Time) SessionLog {
	return SessionLog{
		SessionID:          sessionID,
		PlayerID:           playerID,
		DeviceID:           deviceID,
		SessionStart:       start.UTC(),
		SyncStatus:         DefaultSyncStatus,
		DesyncResolution:   DefaultDesyncResolution,
		ObjectLifecycleLog: DefaultLifecycleLog,
		SessionMetadata:    DefaultSessionMetadata,
		Region:             DefaultUnknown,
		GameVersion:        DefaultUnknown,
		Platform:           DefaultUnknown,
	}
}

// SessionLogStore persists realtime session logs.
type SessionLogStore interface {
	Insert(ctx context.Context, l SessionLog) error

	// FindOpen returns the row for sessionID if it has not ended,
	// otherwise ErrSessionLogNotFound.
	FindOpen(ctx context.Context, sessionID string) (SessionLog, error)

	// EndSession stamps SessionEnd on an open row. Ending an already ended
	// or unknown row returns ErrSessionLogNotFound.
	EndSession(ctx context.Context, sessionID string, end time.Time) error
}
