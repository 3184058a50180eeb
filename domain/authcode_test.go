package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthCode_Redeemable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := AuthCode{
		ClientID:    "client-a",
		RedirectURI: "https://a.example/cb",
		ExpiresAt:   now.Add(time.Minute),
	}

	tests := []struct {
		name        string
		mutate      func(c *AuthCode)
		clientID    string
		redirectURI string
		at          time.Time
		want        bool
	}{
		{name: "fresh code", clientID: "client-a", redirectURI: "https://a.example/cb", at: now, want: true},
		{name: "consumed", mutate: func(c *AuthCode) { c.Consumed = true }, clientID: "client-a", redirectURI: "https://a.example/cb", at: now},
		{name: "expired exactly at expiry", clientID: "client-a", redirectURI: "https://a.example/cb", at: now.Add(time.Minute)},
		{name: "other client", clientID: "client-b", redirectURI: "https://a.example/cb", at: now},
		{name: "trailing slash is a different uri", clientID: "client-a", redirectURI: "https://a.example/cb/", at: now},
		{name: "case differs", clientID: "client-a", redirectURI: "https://A.example/cb", at: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			assert.Equal(t, tt.want, c.Redeemable(tt.clientID, tt.redirectURI, tt.at))
		})
	}
}

func TestAuthCode_Scope(t *testing.T) {
	c := AuthCode{Scopes: []string{"openid", "user"}}
	assert.Equal(t, "openid user", c.Scope())
	assert.True(t, c.HasScope("openid"))
	assert.False(t, c.HasScope("admin"))
}

func TestClient_AllowsScopes(t *testing.T) {
	c := Client{AllowedScopes: []string{"openid", "user"}}
	assert.True(t, c.AllowsScopes([]string{"openid"}))
	assert.True(t, c.AllowsScopes(nil))
	assert.False(t, c.AllowsScopes([]string{"openid", "admin"}))
}
