package domain

import (
	"context"
	"slices"
	"time"
)

// GrantTypeAuthorizationCode is the only grant the token endpoint serves.
const GrantTypeAuthorizationCode = "authorization_code"

// Client represents an OAuth2 client application
//
//nolint:tagliatelle
type Client struct {
	ID                string    `bson:"_id"                 json:"client_id"`
	SecretHash        string    `bson:"client_secret_hash"  json:"-"`
	Name              string    `bson:"client_name"         json:"name"`
	RedirectURIs      []string  `bson:"redirect_uris"       json:"redirect_uris"`
	AllowedScopes     []string  `bson:"allowed_scopes"      json:"allowed_scopes"`
	AllowedGrantTypes []string  `bson:"allowed_grant_types" json:"allowed_grant_types"`
	IsActive          bool      `bson:"is_active"           json:"is_active"`
	CreatedAt         time.Time `bson:"created_at"          json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"          json:"updated_at"`
}

// HasRedirectURI reports whether uri is registered for the client, compared exactly.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsGrantType reports whether the client may use grantType.
func (c *Client) AllowsGrantType(grantType string) bool {
	return slices.Contains(c.AllowedGrantTypes, grantType)
}

// AllowsScopes reports whether every requested scope is allowed for the client.
func (c *Client) AllowsScopes(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.AllowedScopes, s) {
			return false
		}
	}
	return true
}

// ClientRepository defines the interface for client storage and retrieval
type ClientRepository interface {
	// CreateClient creates a new OAuth2 client
	CreateClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// DeleteClient deletes a client
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients returns all clients
	ListClients(ctx context.Context) ([]*Client, error)
}
