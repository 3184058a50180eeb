package domain

import (
	"context"
	"time"
)

// User represents a user in the system.
type User struct {
	ID        string    `bson:"_id"             json:"id"                yaml:"id"`
	Username  string    `bson:"username"        json:"username"          yaml:"username"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"   yaml:"email,omitempty"`
	CreatedAt time.Time `bson:"created_at"      json:"created_at"        yaml:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"      json:"updated_at"        yaml:"updated_at"`
}

// UserRepository defines the persistence operations on users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// DeleteUsersByUsername removes every user whose username is in usernames and
	// returns the usernames that were actually removed.
	DeleteUsersByUsername(ctx context.Context, usernames []string) ([]string, error)
}
