package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// RepositoryProvider builds every MongoDB backed repository for one database.
type RepositoryProvider struct {
	AuthCodes *AuthCodeRepository
	Clients   *ClientRepository
	Users     *UserRepository
}

// NewRepositoryProvider creates the repositories and ensures their indexes.
func NewRepositoryProvider(ctx context.Context, db *mongo.Database) (*RepositoryProvider, error) {
	codes, err := NewAuthCodeRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	return &RepositoryProvider{
		AuthCodes: codes,
		Clients:   NewClientRepository(db),
		Users:     users,
	}, nil
}
