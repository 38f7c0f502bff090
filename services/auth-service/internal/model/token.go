package model

import (
	"time"
)

// TokenKind distinguishes the independent families of single-use tokens.
type TokenKind string

const (
	TokenKindVerification  TokenKind = "verification"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// Token is a single-use, expiring credential sent to a user's inbox.
// Identifier is the email address the token was issued for.
type Token struct {
	ID         string    `bson:"_id"`
	Token      string    `bson:"token"`
	Identifier string    `bson:"identifier"`
	UserID     string    `bson:"user_id"`
	ExpiresAt  time.Time `bson:"expires_at"`
	CreatedAt  time.Time `bson:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
