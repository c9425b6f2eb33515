package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLifetime applies to tokens that carry no exp claim.
const DefaultLifetime = time.Hour

// Token is an issued JWT together with its validity window.
type Token struct {
	Username  string    `json:"username"`
	JWT       string    `json:"jwt"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidFor reports whether the token is still usable at now+skew.
func (t Token) ValidFor(now time.Time, skew time.Duration) bool {
	return t.JWT != "" && now.Add(skew).Before(t.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (t Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ParseExpiry reads the iat/exp claims of raw without verifying its
// signature; the server signed it and remains the party that validates it.
// Missing claims fall back to now and now+DefaultLifetime.
func ParseExpiry(raw string, now time.Time) (issuedAt, expiresAt time.Time, err error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse jwt claims: %w", err)
	}

	issuedAt = now
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	expiresAt = now.Add(DefaultLifetime)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return issuedAt, expiresAt, nil
}
