package identity

import (
	"context"
	"time"
)

// User is a registered player account.
type User struct {
	ID           string
	Username     string
	UsernameNorm string

	// PasswordHash and PasswordSalt are opaque to the store; see security/password.
	PasswordHash string
	PasswordSalt string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the account persistence boundary.
//
// Lookups by username are case-insensitive (they match on UsernameNorm).
// Insert and UpdateUsername return a ConflictError{Field: "username"} when the
// normalized username is already taken.
type Store interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Insert(ctx context.Context, u User) error
	UpdateUsername(ctx context.Context, id, username string, now time.Time) error
	UpdatePassword(ctx context.Context, id, hash, salt string, now time.Time) error
}
