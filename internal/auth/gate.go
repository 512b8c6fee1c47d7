package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/courierchat/courier/internal/token"
)

var (
	// ErrBadToken indicates the token failed signature or expiry checks.
	ErrBadToken = errors.New("bad token")
	// ErrIdentityMismatch indicates the token belongs to a different user.
	ErrIdentityMismatch = errors.New("token identity mismatch")
	// ErrStaleCredential indicates the token was minted against a password
	// hash that has since been rotated.
	ErrStaleCredential = errors.New("stale credential")
)

// Gate centralizes token authorization. Every token-gated operation goes
// through Authorize so the checks (signature, expiry, identity, credential
// freshness) cannot drift between call sites.
type Gate struct {
	tokens *token.Service
}

// NewGate creates a Gate over the given token service.
func NewGate(tokens *token.Service) *Gate {
	return &Gate{tokens: tokens}
}

// Authorize validates raw against the expected email and the user's current
// password hash. On success it returns the token claims. Checks run in a
// fixed order: signature/expiry first, then identity, then credential
// freshness, so a caller observing ErrStaleCredential knows the token was
// otherwise well formed.
func (g *Gate) Authorize(raw, email, currentHash string) (*token.Claims, error) {
	claims, err := g.tokens.Validate(raw)
	if err != nil {
		return nil, ErrBadToken
	}
	if subtle.ConstantTimeCompare([]byte(claims.Email), []byte(email)) != 1 {
		return nil, ErrIdentityMismatch
	}
	if subtle.ConstantTimeCompare([]byte(claims.PasswordHash), []byte(currentHash)) != 1 {
		return nil, ErrStaleCredential
	}
	return claims, nil
}

// Verify validates raw without binding it to a target user. Used by
// bearer-token middleware where the caller's identity comes from the token
// itself; credential freshness is checked by the caller against storage.
func (g *Gate) Verify(raw string) (*token.Claims, error) {
	claims, err := g.tokens.Validate(raw)
	if err != nil {
		return nil, ErrBadToken
	}
	return claims, nil
}
