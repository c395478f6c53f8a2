package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks the length policy in runes and rejects control characters.
func (c Config) Validate(password string) error {
	if !utf8.ValidString(password) {
		return ErrPasswordInvalid
	}

	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if strings.TrimSpace(password) == "" {
		return ErrPasswordInvalid
	}
	for _, r := range password {
		if unicode.IsControl(r) {
			return ErrPasswordInvalid
		}
	}
	return nil
}
