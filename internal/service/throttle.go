package service

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/yourusername/identity-api/internal/session"
)

// LoginThrottle counts failed federated login attempts per provider in the
// caller's session. Reaching the limit destroys the session, which also
// revokes any half-finished multi-step login.
type LoginThrottle struct {
	maxErrors int
}

func NewLoginThrottle(maxErrors int) *LoginThrottle {
	if maxErrors <= 0 {
		maxErrors = 3
	}
	return &LoginThrottle{maxErrors: maxErrors}
}

// RecordFailure bumps the provider's failure counter. It returns true when
// the limit was reached and the session has been destroyed.
func (t *LoginThrottle) RecordFailure(ctx context.Context, sess session.Session, providerTag string) (bool, error) {
	key := session.LoginErrorPrefix + providerTag

	raw, err := sess.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read login error counter: %w", err)
	}
	count := 0
	if raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil {
			count = 0
		}
	}
	count++

	if count >= t.maxErrors {
		log.Printf("[LoginThrottle] session %s reached %d failed %s logins, destroying session", sess.ID(), count, providerTag)
		if err := sess.Destroy(ctx); err != nil {
			return true, fmt.Errorf("failed to destroy session: %w", err)
		}
		return true, nil
	}

	if err := sess.Set(ctx, key, strconv.Itoa(count)); err != nil {
		return false, fmt.Errorf("failed to store login error counter: %w", err)
	}
	return false, nil
}

// Failures returns the current failure count for the provider.
func (t *LoginThrottle) Failures(ctx context.Context, sess session.Session, providerTag string) (int, error) {
	raw, err := sess.Get(ctx, session.LoginErrorPrefix+providerTag)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// Reset clears the provider's failure counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, sess session.Session, providerTag string) error {
	return sess.Delete(ctx, session.LoginErrorPrefix+providerTag)
}

// Limit returns the configured failure limit.
func (t *LoginThrottle) Limit() int {
	return t.maxErrors
}
