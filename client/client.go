// Package client resolves and authenticates registered OAuth2 clients.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/internal/auth"
	"go.pilab.hu/fence/internal/crypto"
)

const secretBytes = 32

var (
	// ErrInvalidCredentials is returned when the client is unknown or the secret
	// does not match.
	ErrInvalidCredentials = errors.New("invalid client credentials")
	// ErrClientInactive is returned when a disabled client authenticates.
	ErrClientInactive = errors.New("client is inactive")
	// ErrRedirectURIMismatch is returned when a redirect URI is not registered for
	// the client.
	ErrRedirectURIMismatch = errors.New("redirect uri is not registered for client")
	// ErrRedirectURIRequired is returned when a token request omits the redirect
	// URI, or an authorization request omits it for a client with several.
	ErrRedirectURIRequired = errors.New("redirect uri is required")
)

// CreateRequest describes a new client registration.
type CreateRequest struct {
	Name          string
	RedirectURIs  []string
	AllowedScopes []string
}

// Service handles client management operations
type Service struct {
	repo       domain.ClientRepository
	hasher     *auth.BcryptSecretHasher
	secretFunc func() (string, error)
}

// NewService creates a Service. A cost <= 0 selects bcrypt.DefaultCost.
func NewService(repo domain.ClientRepository, cost int) *Service {
	return &Service{
		repo:       repo,
		hasher:     auth.NewBcryptSecretHasher(cost),
		secretFunc: func() (string, error) { return crypto.RandomToken(secretBytes) },
	}
}

// Get retrieves a client by ID.
func (s *Service) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.repo.GetClient(ctx, clientID)
}

// Create registers a confidential client for the authorization code grant and
// returns it together with the plain secret, which is not stored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Client, string, error) {
	if req.Name == "" {
		return nil, "", errors.New("client name is required")
	}
	if len(req.RedirectURIs) == 0 {
		return nil, "", errors.New("at least one redirect uri is required")
	}

	secret, err := s.secretFunc()
	if err != nil {
		return nil, "", fmt.Errorf("generate client secret: %w", err)
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	c := &domain.Client{
		ID:                uuid.NewString(),
		SecretHash:        hash,
		Name:              req.Name,
		RedirectURIs:      req.RedirectURIs,
		AllowedScopes:     req.AllowedScopes,
		AllowedGrantTypes: []string{domain.GrantTypeAuthorizationCode},
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreateClient(ctx, c); err != nil {
		return nil, "", err
	}

	return c, secret, nil
}

// List returns every registered client.
func (s *Service) List(ctx context.Context) ([]*domain.Client, error) {
	return s.repo.ListClients(ctx)
}

// Delete removes a client. Codes already issued to it can no longer be redeemed
// because the client fails authentication.
func (s *Service) Delete(ctx context.Context, clientID string) error {
	return s.repo.DeleteClient(ctx, clientID)
}

// Authenticate validates client credentials and returns the client if valid.
func (s *Service) Authenticate(ctx context.Context, clientID, secret string) (*domain.Client, error) {
	c, err := s.repo.GetClient(ctx, clientID)
	if errors.Is(err, domain.ErrClientNotFound) {
		s.hasher.Burn(secret)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(c.SecretHash, secret); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !c.IsActive {
		return nil, ErrClientInactive
	}

	return c, nil
}

// ValidateRedirectURI checks that uri is registered for the client, byte for byte.
func ValidateRedirectURI(c *domain.Client, uri string) error {
	if !c.HasRedirectURI(uri) {
		return ErrRedirectURIMismatch
	}
	return nil
}

// ResolveRedirectURI returns the redirect URI an authorization request is bound
// to. A requested URI is returned unchanged. When it is omitted, the client's only
// registered URI is used. Token requests never resolve: they must repeat the URI.
func ResolveRedirectURI(c *domain.Client, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if len(c.RedirectURIs) != 1 {
		return "", ErrRedirectURIRequired
	}
	return c.RedirectURIs[0], nil
}
