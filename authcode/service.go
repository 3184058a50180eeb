// Package authcode issues authorization codes and redeems them exactly once at the
// token endpoint.
package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.pilab.hu/fence/client"
	"go.pilab.hu/fence/domain"
	serrors "go.pilab.hu/fence/errors"
	"go.pilab.hu/fence/internal/audit"
	"go.pilab.hu/fence/internal/crypto"
	"go.pilab.hu/fence/internal/metrics"
	"go.pilab.hu/fence/log"
	"go.pilab.hu/fence/tracing"
)

// codeBytes is the amount of entropy in a code.
const codeBytes = 50

// DefaultLifetime is used when Options.Lifetime is not set.
const DefaultLifetime = 10 * time.Minute

var (
	ErrUnknownClient       = errors.New("unknown client")
	ErrGrantTypeNotAllowed = errors.New("grant type not allowed for client")
	ErrScopeNotAllowed     = errors.New("scope not allowed for client")
	ErrMissingUser         = errors.New("user identity is required")
)

// Clients resolves and authenticates OAuth2 clients.
type Clients interface {
	Get(ctx context.Context, clientID string) (*domain.Client, error)
	Authenticate(ctx context.Context, clientID, secret string) (*domain.Client, error)
}

// Signer turns a validated grant into tokens.
type Signer interface {
	Sign(ctx context.Context, grant domain.Grant) (*domain.TokenGrant, error)
}

// Recorder receives issuance and redemption events.
type Recorder interface {
	CodeIssued()
	CodeRedeemed(outcome string)
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	Lifetime time.Duration
	Logger   log.Logger
	Recorder Recorder
	// Audit receives one event per issuance and redemption attempt; nil disables it.
	Audit *audit.Logger
}

// IssueRequest is a validated user's authorization request.
type IssueRequest struct {
	ClientID    string
	RedirectURI string
	UserID      string
	Scopes      []string
	Nonce       string
}

// RedeemRequest is a token request for the authorization_code grant.
type RedeemRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Service is the authorization code store and validator.
type Service struct {
	repo     domain.AuthorizationCodeRepository
	clients  Clients
	signer   Signer
	lifetime time.Duration
	logger   log.Logger
	recorder Recorder
	audit    *audit.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(repo domain.AuthorizationCodeRepository, clients Clients, signer Signer, opts Options) *Service {
	s := &Service{
		repo:     repo,
		clients:  clients,
		signer:   signer,
		lifetime: opts.Lifetime,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		audit:    opts.Audit,
		now:      time.Now,
	}
	if s.lifetime <= 0 {
		s.lifetime = DefaultLifetime
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// Issue validates an authorization request against the client registration and
// returns a fresh code bound to the client, redirect URI, user and scopes.
//
// Errors wrap ErrUnknownClient, client.ErrClientInactive, client.ErrRedirectURIMismatch,
// ErrGrantTypeNotAllowed, ErrScopeNotAllowed or ErrMissingUser.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (string, error) {
	code, err := s.issue(ctx, req)
	s.audit.Record(audit.Event{
		Action:  audit.ActionIssueCode,
		User:    req.UserID,
		Target:  req.ClientID,
		Success: err == nil,
		Err:     err,
	})
	return code, err
}

func (s *Service) issue(ctx context.Context, req IssueRequest) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "authcode.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	c, err := s.clients.Get(ctx, req.ClientID)
	if errors.Is(err, domain.ErrClientNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownClient, req.ClientID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client lookup failed")
		return "", fmt.Errorf("get client: %w", err)
	}
	if !c.IsActive {
		return "", client.ErrClientInactive
	}
	if err := client.ValidateRedirectURI(c, req.RedirectURI); err != nil {
		return "", err
	}
	if !c.AllowsGrantType(domain.GrantTypeAuthorizationCode) {
		return "", ErrGrantTypeNotAllowed
	}
	if !c.AllowsScopes(req.Scopes) {
		return "", ErrScopeNotAllowed
	}
	if req.UserID == "" {
		return "", ErrMissingUser
	}

	code, err := crypto.RandomToken(codeBytes)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	record := &domain.AuthCode{
		CodeHash:    crypto.HashToken(code),
		ClientID:    c.ID,
		UserID:      req.UserID,
		RedirectURI: req.RedirectURI,
		Scopes:      req.Scopes,
		Nonce:       req.Nonce,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.lifetime),
	}
	if err := s.repo.SaveAuthCode(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return "", fmt.Errorf("save authorization code: %w", err)
	}

	s.recorder.CodeIssued()
	s.logger.Debug(ctx, "authorization code issued", log.Fields{
		"client_id": c.ID,
		"user_id":   req.UserID,
	})

	return code, nil
}

// Redeem authenticates the client, consumes the code and returns the signed tokens.
//
// The returned error is always an *errors.OAuth2Error. Every problem with the code
// itself, including a binding to another client or redirect URI, is reported as
// invalid_request without detail.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*domain.TokenGrant, error) {
	ctx, span := tracing.Tracer().Start(ctx, "authcode.Redeem")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.client_id", req.ClientID))

	fail := func(outcome string, oerr *serrors.OAuth2Error, cause error) (*domain.TokenGrant, error) {
		s.recorder.CodeRedeemed(outcome)
		s.audit.Record(audit.Event{Action: audit.ActionRedeemCode, Target: req.ClientID, Err: cause})
		span.SetStatus(codes.Error, oerr.Code)
		if outcome == metrics.OutcomeError {
			span.RecordError(cause)
			s.logger.Error(ctx, "authorization code redemption failed", cause, log.Fields{"client_id": req.ClientID})
		} else {
			s.logger.Info(ctx, "authorization code rejected", log.Fields{
				"client_id": req.ClientID,
				"reason":    cause.Error(),
			})
		}
		return nil, oerr
	}

	c, err := s.clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	switch {
	case errors.Is(err, client.ErrInvalidCredentials), errors.Is(err, client.ErrClientInactive):
		return fail(metrics.OutcomeInvalidClient, serrors.NewInvalidClient("client authentication failed"), err)
	case err != nil:
		return fail(metrics.OutcomeError, serrors.NewServerError(""), err)
	}

	if req.Code == "" {
		return fail(metrics.OutcomeInvalidCode, serrors.NewInvalidRequest(""), errors.New("missing code"))
	}

	if req.RedirectURI == "" {
		return fail(metrics.OutcomeInvalidCode, serrors.NewInvalidRequest(""), client.ErrRedirectURIRequired)
	}

	code, err := s.repo.ConsumeAuthCode(ctx, domain.RedemptionRequest{
		CodeHash:    crypto.HashToken(req.Code),
		ClientID:    c.ID,
		RedirectURI: req.RedirectURI,
		Now:         s.now().UTC(),
	})
	switch {
	case errors.Is(err, domain.ErrAuthCodeInvalid):
		return fail(metrics.OutcomeInvalidCode, serrors.NewInvalidRequest(""), err)
	case err != nil:
		return fail(metrics.OutcomeError, serrors.NewServerError(""), err)
	}

	grant, err := s.signer.Sign(ctx, domain.Grant{
		ClientID: code.ClientID,
		UserID:   code.UserID,
		Scopes:   code.Scopes,
		Nonce:    code.Nonce,
		AuthTime: code.IssuedAt,
	})
	if err != nil {
		return fail(metrics.OutcomeError, serrors.NewServerError(""), fmt.Errorf("sign tokens: %w", err))
	}

	s.recorder.CodeRedeemed(metrics.OutcomeSuccess)
	s.audit.Record(audit.Event{
		Action:  audit.ActionRedeemCode,
		User:    code.UserID,
		Target:  c.ID,
		Success: true,
	})
	s.logger.Info(ctx, "authorization code redeemed", log.Fields{
		"client_id": c.ID,
		"user_id":   code.UserID,
	})

	return grant, nil
}

type nopRecorder struct{}

func (nopRecorder) CodeIssued()         {}
func (nopRecorder) CodeRedeemed(string) {}
