// Package token issues and validates signed session tokens.
//
// Tokens are stateless: the server keeps no session table. A token binds
// the holder's email and the password hash it was minted against, so
// rotating the password invalidates every outstanding token for that user
// without any server-side bookkeeping.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every validation failure: bad signature, wrong
// algorithm, malformed payload, or expiry. Callers must not distinguish
// between them.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
}

// Service mints and validates HMAC-SHA256 session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a token service. The secret is the only signing key; it is
// copied so later mutation of the caller's slice cannot change signatures.
func New(secret []byte, ttl time.Duration) *Service {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Service{secret: s, ttl: ttl, now: time.Now}
}

// Issue mints a token for the given email, bound to the current password
// hash. The token expires ttl after issuance.
func (s *Service) Issue(email, passwordHash string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:        email,
		PasswordHash: passwordHash,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a raw token string. Any failure, including
// expiry and algorithm confusion, is reported as ErrInvalidToken.
func (s *Service) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
