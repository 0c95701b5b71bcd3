package service

import (
	"context"
	"fmt"
	"log"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// AccountService covers the host-account operations around the link state:
// profile lookups and the deletion cascade that removes every link before
// the account goes away.
type AccountService struct {
	userRepo    repository.UserRepository
	linkService *LinkService
}

func NewAccountService(userRepo repository.UserRepository, linkService *LinkService) (*AccountService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if linkService == nil {
		return nil, fmt.Errorf("link service is required")
	}
	return &AccountService{userRepo: userRepo, linkService: linkService}, nil
}

func (s *AccountService) GetByID(ctx context.Context, userID string) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// Delete soft-deletes the account. Every federated link is removed first so
// no provider identity keeps resolving to a dead account.
func (s *AccountService) Delete(ctx context.Context, caller Caller, userID string) error {
	if !caller.CanManageAccount(userID) {
		return fmt.Errorf("%w: only the account owner may delete the account", apperrors.ErrForbidden)
	}

	if _, err := s.userRepo.GetByID(userID); err != nil {
		return err
	}

	if err := s.linkService.DisconnectAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove links before deletion: %w", err)
	}
	if err := s.userRepo.Delete(userID); err != nil {
		return err
	}

	log.Printf("[AccountService] deleted account %s", userID)
	return nil
}
