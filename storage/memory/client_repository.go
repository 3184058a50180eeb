// Package memory provides in-process client and user repositories for the memory
// store backend and for tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.pilab.hu/fence/domain"
)

// ClientRepository implements domain.ClientRepository on a map.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// NewClientRepository returns an empty ClientRepository.
func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]domain.Client)}
}

func (r *ClientRepository) CreateClient(_ context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return domain.ErrClientExists
	}
	r.clients[client.ID] = cloneClient(*client)

	return nil
}

func (r *ClientRepository) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	out := cloneClient(c)

	return &out, nil
}

func (r *ClientRepository) DeleteClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		return domain.ErrClientNotFound
	}
	delete(r.clients, clientID)

	return nil
}

func (r *ClientRepository) ListClients(_ context.Context) ([]*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		c := cloneClient(c)
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *domain.Client) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

func cloneClient(c domain.Client) domain.Client {
	c.RedirectURIs = slices.Clone(c.RedirectURIs)
	c.AllowedScopes = slices.Clone(c.AllowedScopes)
	c.AllowedGrantTypes = slices.Clone(c.AllowedGrantTypes)
	return c
}
