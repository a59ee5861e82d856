package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thejerf/abtime"
)

// Token is a signed access token along with its expiry.
type Token struct {
	Raw     string    // the serialized JWT string
	Expires time.Time // the UTC expiration time
}

// Claims is what Decode recovers from a valid token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// tokenClaims carries the expiry at nanosecond precision next to the
// standard exp, which NumericDate can only hold in whole seconds. exp is
// rounded up so it never rejects a token before ExpiresNano does.
type tokenClaims struct {
	jwt.RegisteredClaims
	ExpiresNano int64 `json:"exp_ns,omitempty"`
}

// Codec issues and decodes HMAC-signed JWTs. The key and algorithm are
// fixed at construction and never change afterwards, so a single Codec is
// shared by every request.
type Codec struct {
	key    []byte
	method jwt.SigningMethod
	clock  abtime.AbstractTime
}

// NewCodec builds a Codec for the given secret and algorithm name
// (HS256, HS384 or HS512). A nil clock means wall time.
func NewCodec(secret, alg string, clock abtime.AbstractTime) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing key")
	}
	m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Codec{key: []byte(secret), method: m, clock: clock}, nil
}

// Issue signs a token for subject that expires ttl from now. A ttl of zero
// or less yields a token that is already expired.
func (c *Codec) Issue(subject string, ttl time.Duration) (Token, error) {
	now := c.clock.Now().UTC()
	exp := now.Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(exp)),
		},
		ExpiresNano: exp.UnixNano(),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Raw: signed, Expires: exp}, nil
}

// Decode verifies the signature of raw and then its expiry. Failures are
// reported as ErrMalformedToken, ErrBadSignature or ErrExpired.
func (c *Codec) Decode(raw string) (Claims, error) {
	var rc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &rc,
		func(*jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return Claims{}, classify(err)
	}
	if rc.Subject == "" {
		return Claims{}, ErrMalformedToken
	}
	exp := rc.ExpiresAt.Time.UTC()
	if rc.ExpiresNano != 0 {
		exp = time.Unix(0, rc.ExpiresNano).UTC()
		if !c.clock.Now().Before(exp) {
			return Claims{}, ErrExpired
		}
	}
	return Claims{Subject: rc.Subject, ExpiresAt: exp}, nil
}

// ceilSecond rounds t up to the next whole second.
func ceilSecond(t time.Time) time.Time {
	if s := t.Truncate(time.Second); s.Before(t) {
		return s.Add(time.Second)
	}
	return t
}

// classify maps jwt parse errors onto the package's failure kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformedToken
	}
}
