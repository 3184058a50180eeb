package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.pilab.hu/fence/domain"
	"gopkg.in/yaml.v3"
)

// FileEntry is one client in a clients file. Only the bcrypt hash of the secret
// is ever written to disk.
type FileEntry struct {
	ID            string   `yaml:"client_id"`
	SecretHash    string   `yaml:"client_secret_hash"`
	Name          string   `yaml:"name"`
	RedirectURIs  []string `yaml:"redirect_uris"`
	AllowedScopes []string `yaml:"allowed_scopes"`
	Disabled      bool     `yaml:"disabled,omitempty"`
}

type clientsFile struct {
	Clients []FileEntry `yaml:"clients"`
}

// NewFileEntry converts a registered client into its file form.
func NewFileEntry(c *domain.Client) FileEntry {
	return FileEntry{
		ID:            c.ID,
		SecretHash:    c.SecretHash,
		Name:          c.Name,
		RedirectURIs:  c.RedirectURIs,
		AllowedScopes: c.AllowedScopes,
		Disabled:      !c.IsActive,
	}
}

// LoadFile reads the clients listed in a YAML clients file.
func LoadFile(path string) ([]*domain.Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}

	var f clientsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse clients file %s: %w", path, err)
	}

	now := time.Now().UTC()
	out := make([]*domain.Client, 0, len(f.Clients))
	for i, e := range f.Clients {
		if e.ID == "" || e.SecretHash == "" || len(e.RedirectURIs) == 0 {
			return nil, fmt.Errorf("clients file %s: entry %d needs client_id, client_secret_hash and redirect_uris", path, i)
		}
		out = append(out, &domain.Client{
			ID:                e.ID,
			SecretHash:        e.SecretHash,
			Name:              e.Name,
			RedirectURIs:      e.RedirectURIs,
			AllowedScopes:     e.AllowedScopes,
			AllowedGrantTypes: []string{domain.GrantTypeAuthorizationCode},
			IsActive:          !e.Disabled,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	return out, nil
}

// Seed registers clients that are not registered yet and returns how many were added.
func Seed(ctx context.Context, repo domain.ClientRepository, clients []*domain.Client) (int, error) {
	added := 0
	for _, c := range clients {
		err := repo.CreateClient(ctx, c)
		switch {
		case errors.Is(err, domain.ErrClientExists):
		case err != nil:
			return added, fmt.Errorf("register client %s: %w", c.ID, err)
		default:
			added++
		}
	}
	return added, nil
}
