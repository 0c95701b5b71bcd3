package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// AuthResolver decides which host account a verified provider token belongs
// to. It never creates accounts; that is the registration flow's job.
type AuthResolver struct {
	userRepo    repository.UserRepository
	linkRepo    repository.LinkRepository
	linkService *LinkService
	registry    *ProviderRegistry
	authCfg     config.AuthConfig
}

func NewAuthResolver(
	userRepo repository.UserRepository,
	linkRepo repository.LinkRepository,
	linkService *LinkService,
	registry *ProviderRegistry,
	authCfg config.AuthConfig,
) (*AuthResolver, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if linkRepo == nil {
		return nil, fmt.Errorf("link repository is required")
	}
	if linkService == nil {
		return nil, fmt.Errorf("link service is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	return &AuthResolver{
		userRepo:    userRepo,
		linkRepo:    linkRepo,
		linkService: linkService,
		registry:    registry,
		authCfg:     authCfg,
	}, nil
}

// Authenticate verifies the provider token and resolves it to a host account
// id. pendingUserID is the account a two-step login has already fixed from
// the first factor; when set, the resolved account must match it.
//
// Errors: ErrInvalidToken for any token problem, ErrNoAccountConnected when
// the identity maps to no account (and auto-link could not place it),
// ErrAccountMismatch when the identity belongs to a different account than
// the pending one.
func (r *AuthResolver) Authenticate(ctx context.Context, providerTag, token, pendingUserID string) (string, error) {
	provider, err := r.registry.Get(providerTag)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, err := provider.Verify(ctx, token)
	if err != nil {
		return "", err
	}

	link, err := r.linkRepo.GetByProviderSub(provider.Name(), claims.ProviderSub)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return "", err
		}
		userID, linkErr := r.autoLink(ctx, provider.Name(), token, claims)
		if linkErr != nil {
			return "", linkErr
		}
		return r.checkPending(userID, pendingUserID)
	}

	return r.checkPending(link.UserID, pendingUserID)
}

// autoLink attaches an unknown provider identity to the existing account with
// the same verified email address. Any failure collapses to
// ErrNoAccountConnected so login reveals nothing about why linking was
// refused.
func (r *AuthResolver) autoLink(ctx context.Context, providerName, token string, claims *ProfileClaims) (string, error) {
	if !r.authCfg.AutoLinkByEmail {
		return "", ErrNoAccountConnected
	}
	if !claims.EmailVerified || claims.Email == "" {
		return "", ErrNoAccountConnected
	}

	user, err := r.userRepo.GetByEmail(claims.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", ErrNoAccountConnected
		}
		return "", err
	}

	if _, err := r.linkService.Connect(ctx, SystemCaller, user.ID, providerName, token, false); err != nil {
		log.Printf("[AuthResolver] auto-link of %s identity to account %s failed: %v", providerName, user.ID, err)
		return "", ErrNoAccountConnected
	}

	log.Printf("[AuthResolver] auto-linked %s identity to account %s by verified email", providerName, user.ID)
	return user.ID, nil
}

func (r *AuthResolver) checkPending(resolvedUserID, pendingUserID string) (string, error) {
	if pendingUserID != "" && pendingUserID != resolvedUserID {
		return "", ErrAccountMismatch
	}
	return resolvedUserID, nil
}
