// Package apperr defines the error taxonomy shared by stores, adapters and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindNoToken    Kind = "no_token"
	KindAuth       Kind = "auth"
	KindRefresh    Kind = "refresh"
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream"
	KindTimeout    Kind = "timeout"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrNoToken    = &Error{Kind: KindNoToken}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrRefresh    = &Error{Kind: KindRefresh}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrUpstream   = &Error{Kind: KindUpstream}
	ErrTimeout    = &Error{Kind: KindTimeout}
)

// Error is the single concrete error type; Kind carries the taxonomy.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Status   int // upstream HTTP status, when known
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NoToken(provider string) *Error {
	return &Error{
		Kind:     KindNoToken,
		Provider: provider,
		Message:  "no stored credential, sign-in required",
	}
}

func Auth(provider, message string, status int) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: message, Status: status}
}

func Refresh(provider string, err error) *Error {
	return &Error{Kind: KindRefresh, Provider: provider, Message: "token refresh failed", Err: err}
}

func NotFound(provider, message string) *Error {
	return &Error{Kind: KindNotFound, Provider: provider, Message: message, Status: http.StatusNotFound}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Upstream(provider, message string, status int) *Error {
	return &Error{Kind: KindUpstream, Provider: provider, Message: message, Status: status}
}

func Timeout(provider string, err error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Message: "request timed out", Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NeedsAuth reports whether the caller must (re-)authenticate with the provider.
func NeedsAuth(err error) bool {
	switch KindOf(err) {
	case KindNoToken, KindAuth, KindRefresh:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error onto the status code returned to API clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNoToken, KindAuth, KindRefresh:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the human-readable message for API responses.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	}
	return err.Error()
}
