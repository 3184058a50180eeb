package domain

import "time"

// Grant is a validated authorization code exchange, ready to be turned into tokens.
type Grant struct {
	ClientID string
	UserID   string
	Scopes   []string
	Nonce    string
	AuthTime time.Time
}

// TokenGrant is the token endpoint's success payload.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}
