package domain

import (
	"slices"
	"strings"
	"time"
)

// AuthCode represents an OAuth 2.0 authorization code.
//
// Only the SHA-256 hash of the code is persisted; the plain value is handed to the
// client once and never stored.
type AuthCode struct {
	CodeHash    string    `bson:"_id"          json:"code_hash"`    // SHA-256 of the opaque code
	ClientID    string    `bson:"client_id"    json:"client_id"`    // Client the code was issued to
	UserID      string    `bson:"user_id"      json:"user_id"`      // User who authorized the request
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"` // Exact URI from the authorization request
	Scopes      []string  `bson:"scopes"       json:"scopes"`       // Authorized scopes
	Nonce       string    `bson:"nonce,omitempty" json:"nonce,omitempty"`
	IssuedAt    time.Time `bson:"issued_at"    json:"issued_at"`
	ExpiresAt   time.Time `bson:"expires_at"   json:"expires_at"`
	Consumed    bool      `bson:"consumed"     json:"consumed"` // Whether code has been exchanged
}

// Expired reports whether the code is past its expiry at the given instant.
func (c *AuthCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Redeemable reports whether the code may be exchanged by clientID with redirectURI
// at the given instant. Bindings are compared byte for byte.
func (c *AuthCode) Redeemable(clientID, redirectURI string, now time.Time) bool {
	return !c.Consumed &&
		!c.Expired(now) &&
		c.ClientID == clientID &&
		c.RedirectURI == redirectURI
}

// HasScope reports whether scope was granted with the code.
func (c *AuthCode) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Scope returns the granted scopes as a space separated string.
func (c *AuthCode) Scope() string {
	return strings.Join(c.Scopes, " ")
}

// RedemptionRequest carries the bindings a token request presents for a code.
type RedemptionRequest struct {
	CodeHash    string
	ClientID    string
	RedirectURI string
	Now         time.Time
}
