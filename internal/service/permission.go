package service

// Caller identifies who invokes a link operation. It is derived from the
// request session by the transport layer and passed explicitly; services
// never read ambient request state.
type Caller struct {
	// UserID is the session account id; empty for anonymous callers.
	UserID string
	// System marks a system/service identity that may manage any account
	// (registration completion, deletion cascades, auto-linking).
	System bool
}

// SystemCaller is the identity used for system-initiated operations.
var SystemCaller = Caller{System: true}

// CanManageAccount reports whether the caller may edit the federated link
// state of the given host account.
func (c Caller) CanManageAccount(userID string) bool {
	if c.System {
		return true
	}
	return userID != "" && c.UserID == userID
}
