package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the payload the backend puts in its bearer tokens.
type Claims struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

// Clock reads token lifetimes against an injectable notion of now. The zero
// value uses time.Now.
//
// Tokens are decoded, never verified: the client cannot hold the signing key
// and only needs exp to schedule refreshes. The backend stays the authority.
type Clock struct {
	Now func() time.Time
}

// NewClock returns a Clock reading time from now. A nil now means time.Now.
func NewClock(now func() time.Time) Clock {
	return Clock{Now: now}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Decode returns the token's claims, or nil for anything that is not a
// three-part JWT with a JSON payload.
func (c Clock) Decode(tokenString string) *Claims {
	if tokenString == "" {
		return nil
	}
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

// ExpiresAt returns the exp claim. ok is false when the token is undecodable
// or carries no exp.
func (c Clock) ExpiresAt(tokenString string) (time.Time, bool) {
	claims := c.Decode(tokenString)
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired is true for undecodable tokens, tokens without exp, and tokens
// whose exp is at or before now.
func (c Clock) IsExpired(tokenString string) bool {
	exp, ok := c.ExpiresAt(tokenString)
	if !ok {
		return true
	}
	return !exp.After(c.now())
}

// RemainingSeconds is max(0, exp - now) in whole seconds.
func (c Clock) RemainingSeconds(tokenString string) int64 {
	exp, ok := c.ExpiresAt(tokenString)
	if !ok {
		return 0
	}
	remaining := exp.Unix() - c.now().Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpiringSoon reports whether at most thresholdMinutes remain.
func (c Clock) IsExpiringSoon(tokenString string, thresholdMinutes int) bool {
	return c.RemainingSeconds(tokenString) <= int64(thresholdMinutes)*60
}

var realClock = Clock{}

func Decode(tokenString string) *Claims { return realClock.Decode(tokenString) }

func ExpiresAt(tokenString string) (time.Time, bool) { return realClock.ExpiresAt(tokenString) }

func IsExpired(tokenString string) bool { return realClock.IsExpired(tokenString) }

func RemainingSeconds(tokenString string) int64 { return realClock.RemainingSeconds(tokenString) }

func IsExpiringSoon(tokenString string, thresholdMinutes int) bool {
	return realClock.IsExpiringSoon(tokenString, thresholdMinutes)
}
