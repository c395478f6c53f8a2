// Package session implements per-device credential issuance, validation
// and rotation.
//
// Each (user, device) pair owns at most one live refresh credential record.
// A record carries its own 32-byte key: the refresh value is stored sealed
// under it (XChaCha20-Poly1305) and access tokens are PASETO v4.local tokens
// encrypted under it, so a token never verifies against another record.
// A legacy HS256 JWT access-token format can be selected instead.
//
// ValidateOrRefresh accepts a fresh pair as-is and rotates the pair when the
// access token is invalid or close to expiry. Rotation is a compare-and-swap
// in the store; the loser of a concurrent rotation is rejected.
package session
