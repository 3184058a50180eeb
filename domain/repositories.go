package domain

import (
	"context"
	"errors"
)

var (
	// ErrAuthCodeInvalid is returned when a code is unknown, expired, consumed or
	// presented with bindings that do not match the ones it was issued with.
	ErrAuthCodeInvalid = errors.New("authorization code is invalid")
	// ErrAuthCodeExists is returned when a code hash collides with a stored one.
	ErrAuthCodeExists = errors.New("authorization code already exists")
	// ErrClientNotFound is returned when no client is registered under an ID.
	ErrClientNotFound = errors.New("client not found")
	// ErrClientExists is returned when a client ID is already registered.
	ErrClientExists = errors.New("client already exists")
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when a username or ID is already taken.
	ErrUserExists = errors.New("user already exists")
)

// AuthorizationCodeRepository defines the interface for OAuth 2.0 authorization code operations.
type AuthorizationCodeRepository interface {
	// SaveAuthCode stores a new, unconsumed authorization code.
	// Returns ErrAuthCodeExists if the hash is already present.
	SaveAuthCode(ctx context.Context, code *AuthCode) error

	// GetAuthCode retrieves an authorization code by its hash.
	// Returns ErrAuthCodeInvalid if it is not present.
	GetAuthCode(ctx context.Context, codeHash string) (*AuthCode, error)

	// ConsumeAuthCode atomically checks that the code exists, is unexpired, unconsumed
	// and bound to the request's client and redirect URI, and marks it consumed.
	// Concurrent calls for the same code succeed at most once; every other call
	// returns ErrAuthCodeInvalid.
	ConsumeAuthCode(ctx context.Context, req RedemptionRequest) (*AuthCode, error)

	// DeleteExpiredAuthCodes removes all expired authorization codes and returns how
	// many were removed.
	DeleteExpiredAuthCodes(ctx context.Context) (int64, error)
}
