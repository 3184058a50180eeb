// Package users maintains the local user records that codes and tokens refer to.
package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/log"
)

// Service wraps a domain.UserRepository with the maintenance operations.
type Service struct {
	repo   domain.UserRepository
	logger log.Logger
}

// NewService creates a Service.
func NewService(repo domain.UserRepository, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{repo: repo, logger: logger}
}

// DeleteResult reports the outcome of DeleteUsers.
type DeleteResult struct {
	Deleted  []string `json:"deleted"  yaml:"deleted"`
	NotFound []string `json:"not_found,omitempty" yaml:"not_found,omitempty"`
}

// DeleteUsers deletes exactly the named users. Usernames that do not exist are
// reported and logged but do not fail the call. No other user is touched.
func (s *Service) DeleteUsers(ctx context.Context, usernames []string) (*DeleteResult, error) {
	names := normalize(usernames)
	if len(names) == 0 {
		return &DeleteResult{}, nil
	}

	deleted, err := s.repo.DeleteUsersByUsername(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("delete users: %w", err)
	}

	res := &DeleteResult{Deleted: deleted}
	for _, name := range names {
		if !slices.Contains(deleted, name) {
			res.NotFound = append(res.NotFound, name)
			s.logger.Warn(ctx, "user not found, nothing to delete", log.Fields{"username": name})
		}
	}
	s.logger.Info(ctx, "users deleted", log.Fields{"count": len(deleted)})

	return res, nil
}

// CreateUser registers a user with a fresh ID.
func (s *Service) CreateUser(ctx context.Context, username, email string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureUser returns the user with the given username, creating it on first sight.
// The authorize endpoint uses it for identities asserted by the upstream SSO.
func (s *Service) EnsureUser(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	u, err = s.CreateUser(ctx, username, "")
	if errors.Is(err, domain.ErrUserExists) {
		// Lost a race with a concurrent first login.
		return s.repo.GetUserByUsername(ctx, username)
	}
	return u, err
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListUsers(ctx)
}

func normalize(usernames []string) []string {
	out := make([]string, 0, len(usernames))
	for _, n := range usernames {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// GetUser returns the user with the given ID.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
