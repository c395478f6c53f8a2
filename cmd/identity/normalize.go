package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
)

// NormalizeUsername is the case-insensitive comparison key for a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CleanUsername trims s and checks length and character rules.
// Letters, digits and the punctuation "_-." are allowed.
func CleanUsername(s string) (string, bool) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < usernameMinLen || n > usernameMaxLen {
		return "", false
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '_' || r == '-' || r == '.':
		default:
			return "", false
		}
	}
	return s, true
}
