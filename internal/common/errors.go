// Package common defines the error taxonomy shared by repositories, the
// account service and the CLI. Callers should use errors.Is to match these
// values; specific errors wrap exactly one kind.
package common

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrorNotFound          = errors.New("not found")
	ErrorConflict          = errors.New("conflict")
	ErrorInvalidCredential = errors.New("invalid credential")
	ErrorExpired           = errors.New("expired")
	ErrorRoleDenied        = errors.New("role denied")
	ErrorInvalidInput      = errors.New("invalid input")

	// ErrorStorageFailure marks errors coming from the storage engine.
	// They are transient from the caller's point of view and may be retried.
	ErrorStorageFailure = errors.New("storage failure")
)

// Specific errors.
var (
	ErrNoSuchUser    = fmt.Errorf("no such user: %w", ErrorNotFound)
	ErrInvalidInvite = fmt.Errorf("invalid invite code: %w", ErrorNotFound)

	ErrUserExists   = fmt.Errorf("user already exists: %w", ErrorConflict)
	ErrInviteExists = fmt.Errorf("invite already grants this role: %w", ErrorConflict)

	ErrBadDate       = fmt.Errorf("bad date: %w", ErrorInvalidInput)
	ErrWeakPassword  = fmt.Errorf("weak password: %w", ErrorInvalidInput)
	ErrInvalidEmail  = fmt.Errorf("invalid email: %w", ErrorInvalidInput)
	ErrInvalidRole   = fmt.Errorf("invalid role: %w", ErrorInvalidInput)
	ErrEmptyUsername = fmt.Errorf("empty username: %w", ErrorInvalidInput)
	ErrEmptyInvite   = fmt.Errorf("empty invite code: %w", ErrorInvalidInput)
	ErrEmptySecret   = fmt.Errorf("empty one-time password: %w", ErrorInvalidInput)
	ErrBootstrapDone = fmt.Errorf("accounts already exist: %w", ErrorConflict)

	ErrSetupIncomplete = fmt.Errorf("account setup is not complete: %w", ErrorInvalidCredential)
	ErrBadPassword     = fmt.Errorf("wrong password: %w", ErrorInvalidCredential)
	ErrOtpMismatch     = fmt.Errorf("wrong one-time password: %w", ErrorInvalidCredential)
	ErrOtpExpired      = fmt.Errorf("one-time password expired: %w", ErrorExpired)
	ErrRoleNotGranted  = fmt.Errorf("role not granted: %w", ErrorRoleDenied)
)

// StorageError wraps err as a storage failure unless it already carries one
// of the domain kinds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrorNotFound, ErrorConflict, ErrorInvalidInput, ErrorStorageFailure} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrorStorageFailure, op, err)
}
