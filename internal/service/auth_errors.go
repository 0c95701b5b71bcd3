package service

import (
	"errors"
	"fmt"
)

// Federated auth flow errors used by handlers for stable error_type mapping.
var (
	// ErrInvalidToken: the provider token failed verification (signature,
	// audience, expiry) or the provider call itself failed. Not retryable
	// without a fresh token.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrNoAccountConnected: the token is valid but no host account is
	// linked to the provider identity; the caller routes to registration.
	ErrNoAccountConnected = errors.New("no_account_connected")

	// ErrAccountMismatch: the provider identity is linked to a different
	// host account than the one currently authenticating.
	ErrAccountMismatch = errors.New("account_mismatch")

	// ErrEmailNotVerified: registration requires a verified provider email.
	ErrEmailNotVerified = errors.New("email_not_verified")

	// ErrEmailAlreadyExists: a host account with the provider email exists;
	// the caller should offer connecting it instead of registering.
	ErrEmailAlreadyExists = errors.New("email_already_exists")
)

// AlreadyLinkedError reports a connect attempt that would violate the 1:1
// link mapping. It carries the provider email for user-facing messaging.
type AlreadyLinkedError struct {
	Provider string
	Email    string
}

func (e *AlreadyLinkedError) Error() string {
	if e.Email != "" {
		return fmt.Sprintf("%s account (%s) is already connected", e.Provider, e.Email)
	}
	return fmt.Sprintf("%s account is already connected", e.Provider)
}

// Is lets errors.Is match any AlreadyLinkedError regardless of payload.
func (e *AlreadyLinkedError) Is(target error) bool {
	_, ok := target.(*AlreadyLinkedError)
	return ok
}
