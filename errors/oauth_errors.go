package errors

import (
	"fmt"
	"net/http"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`

	// Status is the HTTP status the error is rendered with.
	Status int `json:"-"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// StatusCode returns the HTTP status for the error, 400 when unset.
func (e *OAuth2Error) StatusCode() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

// Standard OAuth2 error codes
const (
	InvalidRequest         = "invalid_request"
	UnauthorizedClient     = "unauthorized_client"
	AccessDenied           = "access_denied"
	UnsupportedGrantType   = "unsupported_grant_type"
	UnsupportedResponse    = "unsupported_response_type"
	InvalidScope           = "invalid_scope"
	InvalidClient          = "invalid_client"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

// NewInvalidRequest is the single error every failed code redemption maps to. The
// description is kept off the wire by the token endpoint.
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
		Status:      http.StatusUnauthorized,
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
		Status:      http.StatusInternalServerError,
	}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnauthorizedClient,
		Description: description,
		Status:      http.StatusBadRequest,
	}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        AccessDenied,
		Description: description,
		Status:      http.StatusForbidden,
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
		Status:      http.StatusBadRequest,
	}
}

func NewUnsupportedResponseType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedResponse,
		Description: "Only the code response type is supported",
		Status:      http.StatusBadRequest,
	}
}

func NewTemporarilyUnavailable(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        TemporarilyUnavailable,
		Description: description,
		Status:      http.StatusTooManyRequests,
	}
}
