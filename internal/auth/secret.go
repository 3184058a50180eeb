// Package auth hashes and verifies client secrets.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// unknownSecret is hashed once per hasher so that lookups of unknown clients
// spend the same bcrypt work as a wrong secret.
const unknownSecret = "fence-unknown-client"

// BcryptSecretHasher hashes client secrets with bcrypt.
type BcryptSecretHasher struct {
	Cost      int
	dummyHash []byte
}

// NewBcryptSecretHasher creates a new BcryptSecretHasher.
// Default cost is bcrypt.DefaultCost if cost <= 0.
func NewBcryptSecretHasher(cost int) *BcryptSecretHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte(unknownSecret), cost)

	return &BcryptSecretHasher{Cost: cost, dummyHash: dummy}
}

// Hash generates a bcrypt hash for the given secret.
func (h *BcryptSecretHasher) Hash(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a bcrypt hashed secret with its possible plaintext equivalent.
// Returns nil on success, or bcrypt.ErrMismatchedHashAndPassword on mismatch.
func (h *BcryptSecretHasher) Verify(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

// Burn spends one verification worth of time without a stored hash.
func (h *BcryptSecretHasher) Burn(secret string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(secret))
}
