package repository

import "github.com/yourusername/identity-api/internal/domain/entity"

// LinkRepository stores federated provider links for host accounts.
//
// Create must be atomic with respect to the two uniqueness invariants
// (one link per provider identity, one link per host account per provider);
// implementations enforce them with database unique constraints and report
// violations as apperrors.ErrConflict.
type LinkRepository interface {
	Create(link *entity.FederatedLink) error
	GetByProviderSub(provider, providerSub string) (*entity.FederatedLink, error)
	GetByUserAndProvider(userID, provider string) (*entity.FederatedLink, error)
	ListByUser(userID string) ([]entity.FederatedLink, error)
	ListAll() ([]entity.FederatedLink, error)
	// DeleteByUserAndProvider removes a single link; deleting a link that
	// does not exist is a no-op.
	DeleteByUserAndProvider(userID, provider string) error
	// DeleteByUserID removes every link of a host account (deletion cascade).
	DeleteByUserID(userID string) error
}
