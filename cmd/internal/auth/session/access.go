package session

import "time"

// AccessClaims is what a verified access token asserts.
type AccessClaims struct {
	UserID    string
	DeviceID  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessCodec issues and verifies access tokens for a record.
// key is the record's key; codecs with a process-wide secret ignore it.
type AccessCodec interface {
	Issue(key []byte, userID, deviceID string, now, exp time.Time) (string, error)
	Verify(key []byte, token string, now time.Time) (AccessClaims, error)
}

// NewAccessCodec returns the codec selected by cfg.AccessTokenFormat.
func NewAccessCodec(cfg Config) (AccessCodec, error) {
	switch cfg.AccessTokenFormat {
	case FormatPaseto, "":
		return pasetoV4LocalCodec{issuer: cfg.Issuer, clockSkew: cfg.ClockSkew}, nil
	case FormatJWT:
		return newJWTHS256Codec(cfg)
	default:
		return nil, ErrConfig
	}
}
