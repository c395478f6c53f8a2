package token

import "errors"

var (
	// ErrOpen is returned when a ciphertext cannot be opened with the given key.
	// It does not distinguish a wrong key from a corrupted ciphertext.
	ErrOpen = errors.New("token: open failed")

	ErrKeySize        = errors.New("token: key must be 32 bytes")
	ErrWrapKeyMissing = errors.New("token: key wrap KEK missing")
	ErrWrapKeyInvalid = errors.New("token: key wrap KEK must be 64 hex chars")
)
