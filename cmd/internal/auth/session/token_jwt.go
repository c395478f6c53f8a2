package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// jwtHS256Codec is the legacy format: HS256 under one process secret.
// Tokens are not bound to a record key, so a token outlives its record's
// rotation until exp. Rotation still revokes the refresh side.
type jwtHS256Codec struct {
	issuer    string
	clockSkew time.Duration
	secret    []byte
}

func newJWTHS256Codec(cfg Config) (AccessCodec, error) {
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return nil, ErrConfig
	}
	return jwtHS256Codec{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.JWTSecret),
	}, nil
}

func (c jwtHS256Codec) Issue(_ []byte, userID, deviceID string, now, exp time.Time) (string, error) {
	claims := jwtClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c jwtHS256Codec) Verify(_ []byte, token string, now time.Time) (AccessClaims, error) {
	at := now.Add(c.clockSkew)

	var claims jwtClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return at }),
	)
	if err != nil || claims.Subject == "" || claims.ExpiresAt == nil {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:    claims.Subject,
		DeviceID:  claims.DeviceID,
		Issuer:    claims.Issuer,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
