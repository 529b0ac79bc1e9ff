// Package apierr defines the typed error taxonomy surfaced at the API boundary.
// Every request-validation stage maps to exactly one Kind and one HTTP status;
// the outermost boundary converts an Error into the wire response shape without
// leaking internal error text for 500-class failures.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one class of request failure. The string value is the wire
// contract consumed by API clients and must not change.
type Kind string

const (
	KindSessionExpired          Kind = "SESSION_EXPIRED"
	KindWorkspaceAccessDenied   Kind = "WORKSPACE_ACCESS_DENIED"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"
	KindPlanLimitExceeded       Kind = "PLAN_LIMIT_EXCEEDED"
	KindValidationError         Kind = "VALIDATION_ERROR"
	KindMethodNotAllowed        Kind = "METHOD_NOT_ALLOWED"
	KindRateLimitExceeded       Kind = "RATE_LIMIT_EXCEEDED"
	KindNetworkError            Kind = "NETWORK_ERROR"
)

// Status returns the default HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindSessionExpired:
		return http.StatusUnauthorized
	case KindWorkspaceAccessDenied, KindInsufficientPermissions, KindPlanLimitExceeded:
		return http.StatusForbidden
	case KindValidationError:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a client may retry the same request unchanged.
// Quota and permission denials are terminal decisions; the caller must act
// (upgrade plan, request access) before retrying explicitly.
func (k Kind) Retryable() bool {
	return k == KindRateLimitExceeded || k == KindNetworkError
}

// Error is a typed API failure. Details carries structured context (e.g. quota
// usage and the suggested plan) that is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the internal cause for errors.Is/As chains and logging.
// The cause is never serialized to the client.
func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records err as its internal cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

// WithDetails attaches structured detail fields and returns the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Response is the wire shape returned for every denied or failed request.
type Response struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts any error into the boundary response shape. Unexpected
// (non-*Error) failures are mapped to NETWORK_ERROR with the internal text
// suppressed; the caller is responsible for logging the original error.
func ToResponse(err error) (int, Response) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{
			Kind:    KindNetworkError,
			Message: "An unexpected error occurred",
			cause:   err,
		}
	}

	resp := Response{
		Error:     string(apiErr.Kind),
		Message:   apiErr.Message,
		Retryable: apiErr.Kind.Retryable(),
		Details:   apiErr.Details,
	}

	if apiErr.Kind == KindPlanLimitExceeded {
		if resp.Details == nil {
			resp.Details = map[string]interface{}{}
		}
		resp.Details["upgradeRequired"] = true
	}

	return apiErr.Kind.Status(), resp
}
