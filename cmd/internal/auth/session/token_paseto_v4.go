package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const claimDeviceID = "did"

// pasetoV4LocalCodec encrypts access tokens under the owning record's key.
type pasetoV4LocalCodec struct {
	issuer    string
	clockSkew time.Duration
}

func (c pasetoV4LocalCodec) Issue(key []byte, userID, deviceID string, now, exp time.Time) (string, error) {
	sk, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return "", err
	}

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(userID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	if err := tok.Set(claimDeviceID, deviceID); err != nil {
		return "", err
	}

	return tok.V4Encrypt(sk, nil), nil
}

func (c pasetoV4LocalCodec) Verify(key []byte, token string, now time.Time) (AccessClaims, error) {
	sk, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	// Expiry is judged against the caller's clock, not the wall clock.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))
	p.AddRule(paseto.ValidAt(now.Add(c.clockSkew)))

	parsed, err := p.ParseV4Local(sk, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	did, err := parsed.GetString(claimDeviceID)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()
	iss, _ := parsed.GetIssuer()

	return AccessClaims{
		UserID:    sub,
		DeviceID:  did,
		Issuer:    iss,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}
