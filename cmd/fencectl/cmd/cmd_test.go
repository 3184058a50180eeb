package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/cache"
	"go.pilab.hu/fence/client"
	"go.pilab.hu/fence/config"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/internal/backend"
	"go.pilab.hu/fence/internal/crypto"
	"go.pilab.hu/fence/keys"
	"go.pilab.hu/fence/storage/memory"
	"go.pilab.hu/fence/users"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type fixture struct {
	codes   *cache.MemoryAuthCodeStore
	clients *memory.ClientRepository
	users   *memory.UserRepository
}

func newFixture(t *testing.T) *fixture {
	codes := cache.NewMemoryAuthCodeStore()
	t.Cleanup(func() { _ = codes.Close() })

	return &fixture{
		codes:   codes,
		clients: memory.NewClientRepository(),
		users:   memory.NewUserRepository(),
	}
}

func (f *fixture) open(context.Context, *config.Config) (*backend.Stores, error) {
	return &backend.Stores{AuthCodes: f.codes, Clients: f.clients, Users: f.users}, nil
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := newRootCmd(f.open)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUsersDeleteRemovesOnlyNamedUsers(t *testing.T) {
	t.Setenv("FENCE_STORE_BACKEND", config.BackendMongo)
	f := newFixture(t)

	svc := users.NewService(f.users, nil)
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := svc.CreateUser(context.Background(), name, "")
		require.NoError(t, err)
	}

	out, err := f.run(t, "users", "delete", "alice", "carol", "dave")
	require.NoError(t, err)

	var res users.DeleteResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"alice", "carol"}, res.Deleted)
	assert.Equal(t, []string{"dave"}, res.NotFound)

	left, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "bob", left[0].Username)
}

func TestUsersCreateAndList(t *testing.T) {
	t.Setenv("FENCE_STORE_BACKEND", config.BackendMongo)
	f := newFixture(t)

	_, err := f.run(t, "users", "create", "alice", "--email", "alice@example.test")
	require.NoError(t, err)

	out, err := f.run(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "username: alice")
	assert.Contains(t, out, "email: alice@example.test")
}

func TestUsersRejectMemoryBackend(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "users", "delete", "alice")
	require.ErrorIs(t, err, errEphemeralBackend)
}

func TestClientsCreatePrintsFileEntryOnMemoryBackend(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "clients", "create", "billing",
		"--redirect-uri", "https://billing.example.test/cb",
		"--bcrypt-cost", "4")
	require.NoError(t, err)

	var created createdClient
	require.NoError(t, yaml.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.ClientID)
	require.NotEmpty(t, created.ClientSecret)
	require.Len(t, created.Clients, 1)

	entry := created.Clients[0]
	assert.Equal(t, created.ClientID, entry.ID)
	assert.Equal(t, []string{"https://billing.example.test/cb"}, entry.RedirectURIs)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(entry.SecretHash), []byte(created.ClientSecret)))

	svc := client.NewService(f.clients, bcrypt.MinCost)
	_, err = svc.Authenticate(context.Background(), created.ClientID, created.ClientSecret)
	assert.NoError(t, err)
}

func TestClientsCreateRequiresRedirectURI(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "clients", "create", "billing")
	require.Error(t, err)
}

func TestKeysGenerateWritesLoadableKeyPair(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FENCE_KEYS_ROOT", root)
	f := newFixture(t)

	out, err := f.run(t, "keys", "generate", "key-02", "--bits", "1024")
	require.NoError(t, err)

	var printed map[string][]keyPairEntry
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	require.Len(t, printed["JWT_KEYPAIR_FILES"], 1)
	entry := printed["JWT_KEYPAIR_FILES"][0]
	assert.Equal(t, "key-02", entry.KeyID)

	reg, err := keys.LoadRegistry([]config.KeyPairFiles{{
		KeyID:          entry.KeyID,
		PublicKeyFile:  filepath.Join(root, entry.PublicKeyFile),
		PrivateKeyFile: filepath.Join(root, entry.PrivateKeyFile),
	}})
	require.NoError(t, err)
	assert.Equal(t, "key-02", reg.Current().KeyID)
}

func TestKeysGenerateRejectsConfiguredKeyID(t *testing.T) {
	t.Setenv("FENCE_KEYS_ROOT", t.TempDir())
	f := newFixture(t)

	_, err := f.run(t, "keys", "generate", "key-01", "--bits", "1024")
	require.ErrorContains(t, err, "already configured")
}

func TestClientsListAndDelete(t *testing.T) {
	t.Setenv("FENCE_STORE_BACKEND", config.BackendMongo)
	f := newFixture(t)
	ctx := context.Background()

	svc := client.NewService(f.clients, bcrypt.MinCost)
	billing, _, err := svc.Create(ctx, client.CreateRequest{Name: "billing", RedirectURIs: []string{"https://billing.example.test/cb"}})
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, client.CreateRequest{Name: "wiki", RedirectURIs: []string{"https://wiki.example.test/cb"}})
	require.NoError(t, err)

	out, err := f.run(t, "clients", "list")
	require.NoError(t, err)
	var listed []clientView
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	assert.Len(t, listed, 2)
	assert.NotContains(t, out, billing.SecretHash)

	_, err = f.run(t, "clients", "delete", billing.ID)
	require.NoError(t, err)
	_, err = f.clients.GetClient(ctx, billing.ID)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	_, err = f.run(t, "clients", "delete", billing.ID)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestCodesInspect(t *testing.T) {
	t.Setenv("FENCE_STORE_BACKEND", config.BackendRedis)
	f := newFixture(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, f.codes.SaveAuthCode(context.Background(), &domain.AuthCode{
		CodeHash:    crypto.HashToken("plain-code"),
		ClientID:    "billing",
		UserID:      "user-1",
		RedirectURI: "https://billing.example.test/cb",
		Scopes:      []string{"openid"},
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Minute),
	}))

	out, err := f.run(t, "codes", "inspect", "plain-code")
	require.NoError(t, err)
	var view codeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "billing", view.ClientID)
	assert.Equal(t, "https://billing.example.test/cb", view.RedirectURI)
	assert.False(t, view.Consumed)
	assert.NotContains(t, out, "plain-code")

	_, err = f.run(t, "codes", "inspect", "never-issued")
	assert.ErrorContains(t, err, "unknown or expired")
}

func TestCodesInspectRejectsMemoryBackend(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "codes", "inspect", "plain-code")
	assert.ErrorIs(t, err, errEphemeralBackend)
}
