package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.pilab.hu/fence/domain"
)

// UserRepository implements domain.UserRepository on a map keyed by user ID.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserRepository returns an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

func (r *UserRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return domain.ErrUserExists
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return domain.ErrUserExists
		}
	}
	r.users[user.ID] = *user

	return nil
}

func (r *UserRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	return &u, nil
}

func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) ListUsers(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, &u)
	}
	slices.SortFunc(out, func(a, b *domain.User) int { return strings.Compare(a.Username, b.Username) })

	return out, nil
}

func (r *UserRepository) DeleteUsersByUsername(_ context.Context, usernames []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted []string
	for id, u := range r.users {
		if slices.Contains(usernames, u.Username) {
			delete(r.users, id)
			deleted = append(deleted, u.Username)
		}
	}
	slices.Sort(deleted)

	return deleted, nil
}
