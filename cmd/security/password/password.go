package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	argon2Version = 19

	// Parameters of hashes created by the previous server.
	legacyIterations = 10101
	legacyKeyLength  = 24
)

// Hashed is a stored password: the encoded hash plus its base64 salt.
type Hashed struct {
	Hash string
	Salt string
}

// Hash validates password against the policy and hashes it with Argon2id.
//
// Hash format: $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<key_b64>
func (c Config) Hash(password string) (Hashed, error) {
	if err := c.Validate(password); err != nil {
		return Hashed{}, err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Hashed{}, fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return Hashed{
		Hash: fmt.Sprintf(
			"$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
			argon2Version,
			c.Params.MemoryKiB,
			c.Params.Iterations,
			c.Params.Parallelism,
			b64.EncodeToString(key),
		),
		Salt: b64.EncodeToString(salt),
	}, nil
}

// Verify reports whether password matches h.
// Returns (false, ErrInvalidHash) when h cannot be decoded.
func (c Config) Verify(h Hashed, password string) (bool, error) {
	if !strings.HasPrefix(h.Hash, "$") {
		return verifyLegacy(h, password)
	}

	params, salt, expected, err := decodeArgon2id(h)
	if err != nil {
		return false, err
	}
	if !withinReasonableBounds(params, c.Params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- bounded by withinReasonableBounds.
	)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// NeedsRehash reports whether h should be replaced with a hash under c.
func (c Config) NeedsRehash(h Hashed) bool {
	if !strings.HasPrefix(h.Hash, "$argon2id$") {
		return true
	}
	params, _, _, err := decodeArgon2id(h)
	if err != nil {
		return true
	}
	return params.MemoryKiB != c.Params.MemoryKiB ||
		params.Iterations != c.Params.Iterations ||
		params.Parallelism != c.Params.Parallelism
}

func verifyLegacy(h Hashed, password string) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(h.Salt)
	if err != nil || len(salt) == 0 {
		return false, ErrInvalidHash
	}
	expected, err := base64.StdEncoding.DecodeString(h.Hash)
	if err != nil || len(expected) != legacyKeyLength {
		return false, ErrInvalidHash
	}

	key := pbkdf2.Key([]byte(password), salt, legacyIterations, legacyKeyLength, sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	return got.KeyLength >= 16 && got.KeyLength <= 128
}

func decodeArgon2id(h Hashed) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(h.Hash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	key, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	salt, err := b64.DecodeString(h.Salt)
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115 -- decoded length.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- decoded length.
	}, salt, key, nil
}
