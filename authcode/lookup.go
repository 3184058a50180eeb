package authcode

import (
	"context"

	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/internal/crypto"
)

// Lookup returns the stored record of a plain code without touching it. Unknown and
// expired codes return domain.ErrAuthCodeInvalid.
func Lookup(ctx context.Context, repo domain.AuthorizationCodeRepository, code string) (*domain.AuthCode, error) {
	return repo.GetAuthCode(ctx, crypto.HashToken(code))
}
