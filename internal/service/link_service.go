package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// LinkService connects and disconnects federated provider identities.
// Links are never mutated in place; relinking is disconnect then connect.
type LinkService struct {
	userRepo repository.UserRepository
	linkRepo repository.LinkRepository
	registry *ProviderRegistry
}

func NewLinkService(
	userRepo repository.UserRepository,
	linkRepo repository.LinkRepository,
	registry *ProviderRegistry,
) (*LinkService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if linkRepo == nil {
		return nil, fmt.Errorf("link repository is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	return &LinkService{
		userRepo: userRepo,
		linkRepo: linkRepo,
		registry: registry,
	}, nil
}

// Connect links the host account with the provider identity carried by the
// token. With enforcePermission the caller must be a system identity or the
// account owner; registration and auto-link flows pass false because the
// system itself initiates them.
func (s *LinkService) Connect(
	ctx context.Context,
	caller Caller,
	userID string,
	providerTag string,
	token string,
	enforcePermission bool,
) (*entity.FederatedLink, error) {
	if enforcePermission && !caller.CanManageAccount(userID) {
		return nil, fmt.Errorf("%w: only the account owner may manage its connections", apperrors.ErrForbidden)
	}

	provider, err := s.registry.Get(providerTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	claims, err := provider.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(userID); err != nil {
		return nil, err
	}

	existing, err := s.linkRepo.GetByProviderSub(provider.Name(), claims.ProviderSub)
	if err == nil && existing != nil {
		return nil, &AlreadyLinkedError{Provider: provider.Name(), Email: claims.Email}
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	existing, err = s.linkRepo.GetByUserAndProvider(userID, provider.Name())
	if err == nil && existing != nil {
		return nil, &AlreadyLinkedError{Provider: provider.Name(), Email: existing.ProviderEmail}
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	link := &entity.FederatedLink{
		UserID:        userID,
		Provider:      provider.Name(),
		ProviderSub:   claims.ProviderSub,
		ProviderEmail: claims.Email,
		DisplayName:   claims.DisplayName,
		EmailVerified: claims.EmailVerified,
	}
	if err := s.linkRepo.Create(link); err != nil {
		// The unique constraints are the last word; a concurrent connect
		// surfaces here as a conflict.
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, &AlreadyLinkedError{Provider: provider.Name(), Email: claims.Email}
		}
		return nil, err
	}

	if err := s.userRepo.UpdateProfile(userID, map[string]interface{}{"federated_auth_enabled": true}); err != nil {
		return nil, fmt.Errorf("failed to enable federated authenticator: %w", err)
	}

	log.Printf("[LinkService] connected %s identity to account %s", provider.Name(), userID)
	return link, nil
}

// Disconnect removes the provider link of the host account. Disconnecting
// when no link exists is a no-op; the call never fails for that reason.
func (s *LinkService) Disconnect(
	ctx context.Context,
	caller Caller,
	userID string,
	providerTag string,
	enforcePermission bool,
) error {
	if enforcePermission && !caller.CanManageAccount(userID) {
		return fmt.Errorf("%w: only the account owner may manage its connections", apperrors.ErrForbidden)
	}

	provider, err := s.registry.Get(providerTag)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	if err := s.linkRepo.DeleteByUserAndProvider(userID, provider.Name()); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	return s.refreshAuthenticatorFlag(userID)
}

// DisconnectAll removes every federated link of the account. Used by the
// account-deletion cascade; permission checks are the caller's concern.
func (s *LinkService) DisconnectAll(ctx context.Context, userID string) error {
	if err := s.linkRepo.DeleteByUserID(userID); err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	return s.refreshAuthenticatorFlag(userID)
}

// refreshAuthenticatorFlag disables federated login for the account once no
// links remain. The flag gates primary federated login.
func (s *LinkService) refreshAuthenticatorFlag(userID string) error {
	links, err := s.linkRepo.ListByUser(userID)
	if err != nil {
		return err
	}
	if len(links) > 0 {
		return nil
	}
	if err := s.userRepo.UpdateProfile(userID, map[string]interface{}{"federated_auth_enabled": false}); err != nil {
		return fmt.Errorf("failed to disable federated authenticator: %w", err)
	}
	return nil
}

// Links returns every federated link of the host account.
func (s *LinkService) Links(ctx context.Context, userID string) ([]entity.FederatedLink, error) {
	return s.linkRepo.ListByUser(userID)
}

// LinkByUser returns the link of the host account for the provider, or
// apperrors.ErrNotFound.
func (s *LinkService) LinkByUser(ctx context.Context, userID, providerTag string) (*entity.FederatedLink, error) {
	provider, err := s.registry.Get(providerTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return s.linkRepo.GetByUserAndProvider(userID, provider.Name())
}

// LinkByProviderSub returns the link for a provider identity, or
// apperrors.ErrNotFound.
func (s *LinkService) LinkByProviderSub(ctx context.Context, providerTag, providerSub string) (*entity.FederatedLink, error) {
	provider, err := s.registry.Get(providerTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return s.linkRepo.GetByProviderSub(provider.Name(), providerSub)
}
