// Package token holds the symmetric primitives behind refresh credentials.
//
// Every refresh credential record owns a fresh 32-byte key. The refresh value
// handed to the client is sealed under that key with XChaCha20-Poly1305 and only
// the sealed form is stored. A process key-encryption key (KEK) may additionally
// wrap record keys before they reach the database.
//
// Environment:
//   - GS_AUTH_KEY_WRAP_HEX: optional 64 hex chars; enables key wrapping.
package token
