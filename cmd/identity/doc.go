// Package identity owns player accounts: registration, credential checks and
// the username/password change flows.
//
// Usernames are unique case-insensitively. User ids are 22-char URL-safe
// strings derived from random UUIDs so existing clients keep their id format.
package identity
