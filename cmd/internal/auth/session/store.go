package session

import (
	"context"
	"time"
)

// Record is a refresh credential bound to one (user, device) pair.
type Record struct {
	ID       string
	UserID   string
	DeviceID string

	// Ciphertext is the refresh value sealed under Key.
	Ciphertext string
	Key        []byte

	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Store persists refresh credential records.
//
// Implementations must keep at most one non-revoked record per (user, device)
// and must make UpsertRefreshRecord and RotateRefreshRecord atomic.
type Store interface {
	// FindNonRevokedByDevice returns every live record for deviceID, oldest first.
	FindNonRevokedByDevice(ctx context.Context, deviceID string) ([]Record, error)

	// FindNonRevoked returns the live record for the pair or ErrRecordNotFound.
	FindNonRevoked(ctx context.Context, userID, deviceID string) (Record, error)

	// UpsertRefreshRecord revokes any live record for rec's pair and inserts rec.
	UpsertRefreshRecord(ctx context.Context, rec Record) error

	// RotateRefreshRecord revokes revokeID and inserts next, provided revokeID
	// is still live. Otherwise it returns ErrRecordNotFound and changes nothing.
	RotateRefreshRecord(ctx context.Context, revokeID string, next Record) error

	// RevokeRefreshRecord revokes a live record or returns ErrRecordNotFound.
	RevokeRefreshRecord(ctx context.Context, id string, now time.Time) error

	// RevokeAllForUser revokes every live record of userID except the one on
	// exceptDeviceID (empty means none excepted). It returns the count revoked.
	RevokeAllForUser(ctx context.Context, userID, exceptDeviceID string, now time.Time) (int, error)
}
