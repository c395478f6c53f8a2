// Package password hashes and verifies player passwords.
//
// New hashes use Argon2id. The encoded hash carries the cost parameters and the
// salt is stored next to it in its own column, matching the users table layout.
// Hashes imported from the previous server (PBKDF2-SHA256, no prefix) still
// verify and are reported by NeedsRehash so callers can upgrade them on login.
package password
