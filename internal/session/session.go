package session

import "context"

// Well-known session keys used by the authentication flows.
const (
	// KeyUserID holds the authenticated host account id.
	KeyUserID = "user_id"
	// KeyPendingUserID holds the account id a login attempt is trying to
	// authenticate as; absent when a federated login acts as the primary
	// authenticator.
	KeyPendingUserID = "pending_user_id"
	// LoginErrorPrefix prefixes the per-provider failed login counters,
	// e.g. "login_errors:google".
	LoginErrorPrefix = "login_errors:"
)

// Session is the mutable state of one browser session. It is passed
// explicitly into every operation that needs it; there is no ambient
// request-global session.
type Session interface {
	ID() string
	// Get returns the value for key, or "" when the key is not set.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Destroy removes the whole session including every counter and
	// pending login state. A destroyed session reads as empty.
	Destroy(ctx context.Context) error
}

// Store opens sessions by id, creating empty state lazily on first write.
type Store interface {
	Open(ctx context.Context, id string) (Session, error)
}
