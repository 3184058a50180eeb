package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/storage/memory"
	"gopkg.in/yaml.v3"
)

func TestLoadFileAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clients:
  - client_id: portal
    client_secret_hash: "$2a$04$abcdefghijklmnopqrstuu"
    name: Portal
    redirect_uris: [https://portal.example/cb]
    allowed_scopes: [openid, user]
  - client_id: legacy
    client_secret_hash: "$2a$04$abcdefghijklmnopqrstuu"
    redirect_uris: [https://legacy.example/cb]
    disabled: true
`), 0o600))

	clients, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.True(t, clients[0].IsActive)
	assert.False(t, clients[1].IsActive)
	assert.True(t, clients[0].AllowsGrantType(domain.GrantTypeAuthorizationCode))

	repo := memory.NewClientRepository()
	require.NoError(t, repo.CreateClient(context.Background(), &domain.Client{ID: "legacy"}))

	added, err := Seed(context.Background(), repo, clients)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients:\n  - client_id: x\n"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "entry 0")
}

func TestNewFileEntryRoundTrip(t *testing.T) {
	c := &domain.Client{ID: "c", SecretHash: "h", RedirectURIs: []string{"https://c/cb"}, IsActive: true}

	out, err := yaml.Marshal(clientsFile{Clients: []FileEntry{NewFileEntry(c)}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://c/cb", loaded[0].RedirectURIs[0])
	assert.True(t, loaded[0].IsActive)
}
