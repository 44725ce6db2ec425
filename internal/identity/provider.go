// Package identity wraps the platform sign-in flow. A Provider runs one
// interactive authorization at a time and returns the stable user identifier
// the platform issues for this person, plus whatever name/email claims the
// platform shares. Apple only shares email and name on the very first
// authorization, so callers must tolerate empty values on every later sign-in.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Identity is the result of a successful sign-in.
type Identity struct {
	UserID   string // stable across sign-ins for one person
	Email    string // populated only on first authorization
	FullName string // populated only on first authorization
}

// Provider runs the interactive platform sign-in flow.
type Provider interface {
	SignIn(ctx context.Context) (*Identity, error)
}

// AuthErrorCode tags the failure modes of the platform sign-in flow.
type AuthErrorCode string

const (
	AuthCancelled              AuthErrorCode = "cancelled"
	AuthInvalidCredentials     AuthErrorCode = "invalid_credentials"
	AuthAuthorizationFailed    AuthErrorCode = "authorization_failed"
	AuthNoStoredCredentials    AuthErrorCode = "no_stored_credentials"
	AuthCredentialsRevoked     AuthErrorCode = "credentials_revoked"
	AuthUnknownCredentialState AuthErrorCode = "unknown_credential_state"
)

// AuthError is a tagged sign-in failure.
type AuthError struct {
	Code AuthErrorCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sign-in failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("sign-in failed (%s)", e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is lets callers match on the code with errors.Is and a bare *AuthError.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewAuthError wraps err with a failure code.
func NewAuthError(code AuthErrorCode, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

// CodeOf extracts the AuthErrorCode from err, or unknown_credential_state when
// err is not an AuthError.
func CodeOf(err error) AuthErrorCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return AuthUnknownCredentialState
}
