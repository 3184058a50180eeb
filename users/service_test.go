package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/storage/memory"
)

func seed(t *testing.T, names ...string) (*Service, *memory.UserRepository) {
	t.Helper()
	repo := memory.NewUserRepository()
	svc := NewService(repo, nil)
	for _, n := range names {
		_, err := svc.CreateUser(context.Background(), n, n+"@example.org")
		require.NoError(t, err)
	}
	return svc, repo
}

func TestDeleteUsers_OnlyNamedUsers(t *testing.T) {
	svc, repo := seed(t, "alice", "bob", "carol", "dave")

	res, err := svc.DeleteUsers(context.Background(), []string{"bob", "dave", "erin", "bob", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "dave"}, res.Deleted)
	assert.Equal(t, []string{"erin"}, res.NotFound)

	left, err := repo.ListUsers(context.Background())
	require.NoError(t, err)
	var names []string
	for _, u := range left {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"alice", "carol"}, names)
}

func TestDeleteUsers_Empty(t *testing.T) {
	svc, repo := seed(t, "alice")

	res, err := svc.DeleteUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)

	left, err := repo.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestEnsureUser(t *testing.T) {
	svc, _ := seed(t, "alice")
	ctx := context.Background()

	existing, err := svc.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", existing.Email)

	created, err := svc.EnsureUser(ctx, "zed")
	require.NoError(t, err)
	again, err := svc.EnsureUser(ctx, "zed")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestCreateUser(t *testing.T) {
	svc, _ := seed(t, "alice")

	_, err := svc.CreateUser(context.Background(), "  ", "")
	assert.Error(t, err)
	_, err = svc.CreateUser(context.Background(), "alice", "")
	assert.ErrorIs(t, err, domain.ErrUserExists)
}
