package service

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound reports a dispatch or registry target that does not
	// resolve to a live session.
	ErrSessionNotFound = errors.New("session_not_found")

	// ErrUnauthorized reports a controlling session that lacks permission
	// over the requested target.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDispatchFailed reports a transport-level delivery failure.
	ErrDispatchFailed = errors.New("dispatch_failed")

	// ErrInvalidCredentials reports a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// AuthorizationError wraps a collaborator fault (token store, user
// directory) hit while resolving a request identity. Missing or unknown
// credentials are NOT errors; only infrastructure faults surface this way.
type AuthorizationError struct {
	Op    string
	Cause error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s: %v", e.Op, e.Cause)
}

func (e *AuthorizationError) Unwrap() error { return e.Cause }
