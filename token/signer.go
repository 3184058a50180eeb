// Package token builds and signs the access and ID tokens handed out by the token
// endpoint.
package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/keys"
)

const (
	TokenTypeBearer = "Bearer"
	ScopeOpenID     = "openid"
)

// JOSE "typ" header values. Access tokens follow RFC 9068 so that an ID token
// can never pass as one.
const (
	HeaderTypeAccessToken = "at+jwt"
	HeaderTypeJWT         = "JWT"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// AccessClaims are the claims of an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"azp,omitempty"`
}

// IDClaims are the claims of an OpenID Connect ID token.
type IDClaims struct {
	jwt.RegisteredClaims
	Nonce    string `json:"nonce,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
}

// Signer signs tokens with the current key of a keys.Registry.
type Signer struct {
	registry  *keys.Registry
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewSigner creates a Signer. accessTTL bounds both the access and the ID token.
func NewSigner(registry *keys.Registry, issuer string, accessTTL time.Duration) *Signer {
	return &Signer{
		registry:  registry,
		issuer:    issuer,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// Sign issues an access token for the grant, plus an ID token when the openid scope
// was granted.
func (s *Signer) Sign(_ context.Context, grant domain.Grant) (*domain.TokenGrant, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.accessTTL)
	scope := strings.Join(grant.Scopes, " ")

	access := AccessClaims{
		RegisteredClaims: s.registered(grant, now, expiresAt),
		Scope:            scope,
		ClientID:         grant.ClientID,
	}
	accessToken, err := s.sign(access, HeaderTypeAccessToken)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	out := &domain.TokenGrant{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		Scope:       scope,
	}

	if slices.Contains(grant.Scopes, ScopeOpenID) {
		id := IDClaims{
			RegisteredClaims: s.registered(grant, now, expiresAt),
			Nonce:            grant.Nonce,
		}
		if !grant.AuthTime.IsZero() {
			id.AuthTime = grant.AuthTime.Unix()
		}
		out.IDToken, err = s.sign(id, HeaderTypeJWT)
		if err != nil {
			return nil, fmt.Errorf("sign id token: %w", err)
		}
	}

	return out, nil
}

func (s *Signer) registered(grant domain.Grant, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   grant.UserID,
		Audience:  jwt.ClaimStrings{grant.ClientID},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
}

func (s *Signer) sign(claims jwt.Claims, typ string) (string, error) {
	key := s.registry.Current()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KeyID
	tok.Header["typ"] = typ
	return tok.SignedString(key.PrivateKey)
}

// VerifyAccessToken validates an access token. Tokens without the at+jwt type,
// ID tokens among them, are rejected with ErrWrongTokenType.
func (s *Signer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.verify(tokenString, &claims, HeaderTypeAccessToken); err != nil {
		return nil, err
	}
	return &claims, nil
}

// Verify parses and validates a token of any type signed by any key in the
// registry, decoding its claims into claims.
func (s *Signer) Verify(tokenString string, claims jwt.Claims) error {
	return s.verify(tokenString, claims, "")
}

func (s *Signer) verify(tokenString string, claims jwt.Claims, wantType string) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if wantType != "" && !hasType(t, wantType) {
			return nil, ErrWrongTokenType
		}
		kid, _ := t.Header["kid"].(string)
		pair, err := s.registry.Key(kid)
		if err != nil {
			return nil, err
		}
		return pair.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

// hasType compares the typ header, accepting the "application/" prefix of
// RFC 8725 media types.
func hasType(t *jwt.Token, want string) bool {
	typ, _ := t.Header["typ"].(string)
	typ = strings.TrimPrefix(strings.ToLower(typ), "application/")
	return typ == want
}
