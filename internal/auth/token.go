// Package auth provides password hashing and stateless session tokens.
// A session token is an HS256 JWT carrying the user ID; no server-side
// session record exists, so a token is valid until its expiry claim.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned by ParseSessionToken when the token was
// well-formed and correctly signed but its expiry has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for every other parse failure: bad
// signature, malformed structure, or an unexpected signing method.
var ErrTokenInvalid = errors.New("invalid token")

// SessionClaims is the claim set embedded in a session token. The
// registered claims carry issued-at and expiry; UserID identifies the
// account the session belongs to.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID uint64 `json:"uid"`
}

// NewSessionToken builds and signs an HS256 JWT for a user. It takes
// the signing secret, the user ID and the session lifetime, and
// returns the serialized token along with its UTC expiration time.
func NewSessionToken(secret string, userID uint64, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
	})
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseSessionToken verifies the signature and expiry of a session
// token and returns the user ID it was issued for. Expired tokens
// yield ErrTokenExpired; any other failure yields ErrTokenInvalid.
func ParseSessionToken(secret, raw string) (uint64, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything other than HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	if !tok.Valid || claims.UserID == 0 {
		return 0, ErrTokenInvalid
	}
	return claims.UserID, nil
}
