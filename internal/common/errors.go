// Package common defines shared constants and sentinel errors used across
// the API server, the capture worker and the operator CLI. Callers should use
// errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrNoRowsUpdated = errors.New("no rows matched update guard")

	// Service-level errors.
	ErrorInternal         = errors.New("internal error")
	ErrorUnauthorized     = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation error")
	ErrPreconditionFailed = errors.New("precondition failed")

	// Deployment state, not caller input. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// Corrupt or tampered bundle payloads.
	ErrIntegrity = errors.New("integrity check failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Precondition and conflict refinements. They wrap the taxonomy roots above so
// that errors.Is(err, ErrPreconditionFailed) keeps working for transports.
var (
	ErrBundleNotSetUp   = fmt.Errorf("%w: session bundle is not available, please set up the session first", ErrPreconditionFailed)
	ErrNotSharedSession = fmt.Errorf("%w: this is not the shared session", ErrPreconditionFailed)
	ErrSessionDisabled  = fmt.Errorf("%w: session is disabled", ErrPreconditionFailed)
	ErrChecksumRequired = fmt.Errorf("%w: bundle checksum is required to mark the session ready", ErrPreconditionFailed)

	ErrDuplicateName = fmt.Errorf("%w: session name already exists", ErrConflict)
	ErrDomainInUse   = fmt.Errorf("%w: domain is assigned to sessions", ErrConflict)
	ErrReservedName  = fmt.Errorf("%w: name is reserved for the shared session", ErrConflict)
)
