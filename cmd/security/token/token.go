package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size of a per-record key.
	KeySize = chacha20poly1305.KeySize

	// WrapKeyEnv names the env var holding the optional KEK.
	// #nosec G101 -- env var name, not a credential.
	WrapKeyEnv = "GS_AUTH_KEY_WRAP_HEX"
)

// NewKey returns a fresh random 32-byte key.
func NewKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("token: key: %w", err)
	}
	return k, nil
}

// NewRefreshValue returns nBytes of randomness rendered as unpadded base64url.
func NewRefreshValue(nBytes int) (string, error) {
	if nBytes < 16 {
		nBytes = 16
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: refresh value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Seal encrypts plaintext under key and returns base64url(nonce || ciphertext).
func Seal(key []byte, plaintext string) (string, error) {
	out, err := sealBytes(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any failure is reported as ErrOpen.
func Open(key []byte, sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrOpen
	}
	pt, err := openBytes(key, raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Matches reports whether sealed opens under key to exactly want.
// Open failures are a mismatch, not an error.
func Matches(key []byte, sealed, want string) bool {
	got, err := Open(key, sealed)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// KeyWrapper seals record keys under a process KEK before they are stored.
// The zero value is a pass-through.
type KeyWrapper struct {
	kek []byte
}

// NewKeyWrapper builds a wrapper from a 32-byte KEK.
func NewKeyWrapper(kek []byte) (KeyWrapper, error) {
	if len(kek) != KeySize {
		return KeyWrapper{}, ErrKeySize
	}
	return KeyWrapper{kek: append([]byte(nil), kek...)}, nil
}

// KeyWrapperFromEnv reads GS_AUTH_KEY_WRAP_HEX. A missing value yields the
// pass-through wrapper together with ErrWrapKeyMissing so callers can enforce policy.
func KeyWrapperFromEnv() (KeyWrapper, error) {
	raw := strings.TrimSpace(os.Getenv(WrapKeyEnv))
	if raw == "" {
		return KeyWrapper{}, ErrWrapKeyMissing
	}
	kek, err := hex.DecodeString(raw)
	if err != nil || len(kek) != KeySize {
		return KeyWrapper{}, ErrWrapKeyInvalid
	}
	return NewKeyWrapper(kek)
}

// Enabled reports whether a KEK is configured.
func (w KeyWrapper) Enabled() bool { return len(w.kek) == KeySize }

// Wrap returns the stored form of a record key.
func (w KeyWrapper) Wrap(key []byte) ([]byte, error) {
	if !w.Enabled() {
		return append([]byte(nil), key...), nil
	}
	return sealBytes(w.kek, key)
}

// Unwrap reverses Wrap.
func (w KeyWrapper) Unwrap(stored []byte) ([]byte, error) {
	if !w.Enabled() {
		return append([]byte(nil), stored...), nil
	}
	return openBytes(w.kek, stored)
}

func sealBytes(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrKeySize
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("token: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func openBytes(key, raw []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrOpen
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrOpen
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
