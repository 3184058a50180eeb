package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/fence/domain"
)

// ClientRepository implements domain.ClientRepository using MongoDB.
type ClientRepository struct {
	coll *mongo.Collection
}

// NewClientRepository creates a new ClientRepository instance.
func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		coll: db.Collection(ClientsCollection),
	}
}

func (s *ClientRepository) CreateClient(ctx context.Context, c *domain.Client) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = time.Now().UTC()

	_, err := s.coll.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrClientExists
	}
	return err
}

func (s *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var cli domain.Client

	err := s.coll.FindOne(ctx, bson.M{"_id": clientID}).Decode(&cli)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}

	return &cli, nil
}

func (s *ClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": clientID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("delete failed: %w", domain.ErrClientNotFound)
	}
	return nil
}

func (s *ClientRepository) ListClients(ctx context.Context) ([]*domain.Client, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var clients []*domain.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}
