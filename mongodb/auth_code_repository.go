package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/fence/domain"
)

// AuthCodeRepository stores authorization codes keyed by their hash.
type AuthCodeRepository struct {
	authCodes *mongo.Collection
	now       func() time.Time
}

// NewAuthCodeRepository creates the repository and ensures the TTL index that lets
// the server drop expired codes on its own.
func NewAuthCodeRepository(ctx context.Context, db *mongo.Database) (*AuthCodeRepository, error) {
	r := &AuthCodeRepository{
		authCodes: db.Collection(CodesCollection),
		now:       time.Now,
	}

	_, err := r.authCodes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth code TTL index: %w", err)
	}

	return r, nil
}

func (r *AuthCodeRepository) SaveAuthCode(ctx context.Context, authCode *domain.AuthCode) error {
	if authCode.CodeHash == "" {
		return errors.New("auth code hash cannot be empty")
	}

	_, err := r.authCodes.InsertOne(ctx, authCode)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAuthCodeExists
		}
		log.Error().Err(err).Str("client_id", authCode.ClientID).Msg("Error saving authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	log.Debug().Str("client_id", authCode.ClientID).Str("userID", authCode.UserID).Msg("Authorization code saved")

	return nil
}

func (r *AuthCodeRepository) GetAuthCode(ctx context.Context, codeHash string) (*domain.AuthCode, error) {
	var authCode domain.AuthCode
	err := r.authCodes.FindOne(ctx, bson.M{"_id": codeHash}).Decode(&authCode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAuthCodeInvalid
		}
		log.Error().Err(err).Msg("Error retrieving authorization code")
		return nil, fmt.Errorf("failed to retrieve authorization code: %w", err)
	}
	return &authCode, nil
}

// ConsumeAuthCode matches every binding in the filter so that the check and the
// update are one server-side operation.
func (r *AuthCodeRepository) ConsumeAuthCode(ctx context.Context, req domain.RedemptionRequest) (*domain.AuthCode, error) {
	filter := bson.M{
		"_id":          req.CodeHash,
		"consumed":     false,
		"client_id":    req.ClientID,
		"redirect_uri": req.RedirectURI,
		"expires_at":   bson.M{"$gt": req.Now},
	}
	update := bson.M{"$set": bson.M{"consumed": true}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var authCode domain.AuthCode
	err := r.authCodes.FindOneAndUpdate(ctx, filter, update, opts).Decode(&authCode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAuthCodeInvalid
		}
		log.Error().Err(err).Msg("Error consuming authorization code")
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	log.Debug().Str("client_id", authCode.ClientID).Msg("Authorization code marked as used")

	return &authCode, nil
}

// DeleteExpiredAuthCodes removes expired codes the TTL monitor has not reached yet.
func (r *AuthCodeRepository) DeleteExpiredAuthCodes(ctx context.Context) (int64, error) {
	res, err := r.authCodes.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": r.now().UTC()}})
	if err != nil {
		log.Error().Err(err).Msg("Error deleting expired authorization codes")
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	return res.DeletedCount, nil
}
