package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is returned when a presented credential pair cannot be
	// accepted or refreshed. Callers must log in again.
	ErrInvalidSession = errors.New("invalid session")

	// ErrIssuanceFailed is returned when a new credential could not be minted or stored.
	ErrIssuanceFailed = errors.New("issuance failed")

	// ErrRecordNotFound is returned by stores when no live record matches.
	ErrRecordNotFound = errors.New("refresh record not found")

	// ErrInvalidToken is returned by access-token codecs for any verification failure.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IssuanceError wraps the cause of a failed issuance or rotation.
// It matches ErrIssuanceFailed with errors.Is.
type IssuanceError struct {
	Step string
	Err  error
}

func (e IssuanceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIssuanceFailed, e.Step, e.Err)
}

func (e IssuanceError) Unwrap() []error { return []error{ErrIssuanceFailed, e.Err} }
