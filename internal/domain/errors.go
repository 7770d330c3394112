package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the device or stream does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation means a required field was missing or malformed
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable means the delegated media engine could not serve the call
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNetworkProbe is scanner-local and never leaves a scanner
	ErrNetworkProbe = errors.New("network probe failed")
	// ErrAuth is the parent of every *AuthError
	ErrAuth = errors.New("authentication failed")
)

// ErrorKind is the protocol-facing classification of an error
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NotFound"
	KindValidation          ErrorKind = "ValidationError"
	KindAuth                ErrorKind = "AuthError"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindNetworkProbe        ErrorKind = "NetworkProbeError"
	KindInternal            ErrorKind = "Internal"
)

// AuthErrorKind says why a token was rejected
type AuthErrorKind string

const (
	AuthMissingToken AuthErrorKind = "MissingToken"
	AuthExpired      AuthErrorKind = "Expired"
	AuthInvalid      AuthErrorKind = "Invalid"
)

// AuthError reports a rejected access token. It carries no detail about
// which device the token named.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthMissingToken:
		return "authentication token required"
	case AuthExpired:
		return "token expired"
	default:
		return "invalid token"
	}
}

// Is lets errors.Is(err, ErrAuth) match any AuthError
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// NewAuthError creates an AuthError of the given kind
func NewAuthError(kind AuthErrorKind) *AuthError {
	return &AuthError{Kind: kind}
}

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Kind classifies err into the error taxonomy
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrNetworkProbe):
		return KindNetworkProbe
	default:
		return KindInternal
	}
}
