package password

import "errors"

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrPasswordInvalid  = errors.New("password contains invalid characters")
	ErrInvalidHash      = errors.New("invalid password hash")
)
