//nolint:varnamelen
package echo

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fence/api"
	"go.pilab.hu/fence/authcode"
	"go.pilab.hu/fence/client"
	"go.pilab.hu/fence/domain"
	"go.pilab.hu/fence/errors"
	"go.pilab.hu/fence/keys"
	"go.pilab.hu/fence/log"
	"go.pilab.hu/fence/token"
	"go.pilab.hu/fence/users"
)

// ClientLookup resolves registered clients.
type ClientLookup interface {
	Get(ctx context.Context, clientID string) (*domain.Client, error)
}

// Deps are the collaborators of OAuth2API.
type Deps struct {
	Codes   *authcode.Service
	Clients ClientLookup
	Users   *users.Service
	Signer  *token.Signer
	Keys    *keys.Registry
	Logger  log.Logger

	Issuer string
	// UserIdentityHeader names the header the upstream SSO proxy sets to the
	// authenticated user's persistent identifier.
	UserIdentityHeader string
}

// OAuth2API struct to hold dependencies.
type OAuth2API struct {
	codes          *authcode.Service
	clients        ClientLookup
	users          *users.Service
	signer         *token.Signer
	keys           *keys.Registry
	logger         log.Logger
	config         *api.OpenIDConfiguration
	identityHeader string
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(deps Deps) *OAuth2API {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &OAuth2API{
		codes:          deps.Codes,
		clients:        deps.Clients,
		users:          deps.Users,
		signer:         deps.Signer,
		keys:           deps.Keys,
		logger:         logger,
		config:         api.NewOpenIDConfiguration(deps.Issuer),
		identityHeader: deps.UserIdentityHeader,
	}
}

// RegisterRoutes registers the OAuth2 routes on g. tokenMiddleware wraps only the
// token endpoint.
func (oa *OAuth2API) RegisterRoutes(g *echo.Group, tokenMiddleware ...echo.MiddlewareFunc) {
	g.GET("/oauth2/authorize", oa.AuthorizeHandler)
	g.POST("/oauth2/token", oa.TokenHandler, tokenMiddleware...)
	g.GET("/oauth2/userinfo", oa.UserInfoHandler)

	g.GET("/.well-known/openid-configuration", oa.OpenIDConfigurationHandler)
	g.GET("/.well-known/jwks.json", oa.JWKSHandler)
}

// AuthorizeHandler handles OAuth 2.0 authorization requests for an already
// authenticated user. Problems with the client or redirect URI are rendered as
// JSON; every later problem is reported to the client through the redirect.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	ctx := c.Request().Context()
	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")
	state := c.QueryParam("state")

	cli, err := oa.clients.Get(ctx, clientID)
	if err != nil {
		if stderrors.Is(err, domain.ErrClientNotFound) {
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("unknown client_id"))
		}
		oa.logger.Error(ctx, "client lookup failed", err, log.Fields{"client_id": clientID})
		return c.JSON(http.StatusInternalServerError, errors.NewServerError(""))
	}

	redirectURI, err = client.ResolveRedirectURI(cli, redirectURI)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("redirect_uri is required"))
	}
	if err := client.ValidateRedirectURI(cli, redirectURI); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("invalid redirect_uri"))
	}

	if c.QueryParam("response_type") != "code" {
		return redirectWithError(c, redirectURI, state, errors.NewUnsupportedResponseType())
	}

	username := strings.TrimSpace(c.Request().Header.Get(oa.identityHeader))
	if username == "" {
		return redirectWithError(c, redirectURI, state, errors.NewAccessDenied("user is not authenticated"))
	}

	user, err := oa.users.EnsureUser(ctx, username)
	if err != nil {
		oa.logger.Error(ctx, "failed to resolve user", err, log.Fields{"username": username})
		return redirectWithError(c, redirectURI, state, errors.NewServerError(""))
	}

	code, err := oa.codes.Issue(ctx, authcode.IssueRequest{
		ClientID:    cli.ID,
		RedirectURI: redirectURI,
		UserID:      user.ID,
		Scopes:      strings.Fields(c.QueryParam("scope")),
		Nonce:       c.QueryParam("nonce"),
	})
	switch {
	case stderrors.Is(err, authcode.ErrScopeNotAllowed):
		return redirectWithError(c, redirectURI, state, errors.NewInvalidScope("scope not allowed for client"))
	case stderrors.Is(err, authcode.ErrGrantTypeNotAllowed), stderrors.Is(err, client.ErrClientInactive):
		return redirectWithError(c, redirectURI, state, errors.NewUnauthorizedClient(err.Error()))
	case err != nil:
		oa.logger.Error(ctx, "failed to issue authorization code", err, log.Fields{"client_id": cli.ID})
		return redirectWithError(c, redirectURI, state, errors.NewServerError(""))
	}

	return redirect(c, redirectURI, url.Values{"code": {code}}, state)
}

// TokenHandler exchanges an authorization code for tokens. Client credentials are
// taken from HTTP Basic authentication when present, otherwise from the form.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	switch c.FormValue("grant_type") {
	case domain.GrantTypeAuthorizationCode:
	case "":
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("grant_type is required"))
	default:
		return c.JSON(http.StatusBadRequest, errors.NewUnsupportedGrantType())
	}

	clientID, clientSecret, basic := clientCredentials(c)

	grant, err := oa.codes.Redeem(c.Request().Context(), authcode.RedeemRequest{
		Code:         c.FormValue("code"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  c.FormValue("redirect_uri"),
	})
	if err != nil {
		var oauthErr *errors.OAuth2Error
		if !stderrors.As(err, &oauthErr) {
			oauthErr = errors.NewServerError("")
		}
		if oauthErr.Code == errors.InvalidClient && basic {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="fence"`)
		}
		return c.JSON(oauthErr.StatusCode(), oauthErr)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")

	return c.JSON(http.StatusOK, grant)
}

// UserInfoHandler returns the claims of the user an access token was issued to.
func (oa *OAuth2API) UserInfoHandler(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, raw, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	}

	claims, err := oa.signer.VerifyAccessToken(raw)
	if err != nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	}

	ctx := c.Request().Context()
	user, err := oa.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if stderrors.Is(err, domain.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
		}
		oa.logger.Error(ctx, "failed to load user", err)
		return c.JSON(http.StatusInternalServerError, errors.NewServerError(""))
	}

	return c.JSON(http.StatusOK, api.UserInfo{
		Subject:           user.ID,
		PreferredUsername: user.Username,
		Email:             user.Email,
	})
}

// JWKSHandler publishes the public half of every configured signing key.
func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.keys.JWKS())
}

// OpenIDConfigurationHandler serves the discovery document.
func (oa *OAuth2API) OpenIDConfigurationHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.config)
}

// clientCredentials returns the client ID and secret and whether they came from
// HTTP Basic authentication. Basic credentials are form-urlencoded per RFC 6749.
func clientCredentials(c echo.Context) (string, string, bool) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		if dec, err := url.QueryUnescape(id); err == nil {
			id = dec
		}
		if dec, err := url.QueryUnescape(secret); err == nil {
			secret = dec
		}
		return id, secret, true
	}
	return c.FormValue("client_id"), c.FormValue("client_secret"), false
}

func redirectWithError(c echo.Context, redirectURI, state string, oauthErr *errors.OAuth2Error) error {
	params := url.Values{"error": {oauthErr.Code}}
	if oauthErr.Description != "" {
		params.Set("error_description", oauthErr.Description)
	}
	return redirect(c, redirectURI, params, state)
}

func redirect(c echo.Context, redirectURI string, params url.Values, state string) error {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("invalid redirect_uri"))
	}

	query := target.Query()
	for k, vs := range params {
		query[k] = vs
	}
	if state != "" {
		query.Set("state", state)
	}
	target.RawQuery = query.Encode()

	return c.Redirect(http.StatusFound, target.String())
}
