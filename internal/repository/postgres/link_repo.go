package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"gorm.io/gorm"
)

// pgUniqueViolation is the postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

type LinkRepo struct {
	db *gorm.DB
}

func NewLinkRepo(db *gorm.DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// Create inserts a link row. Both uniqueness invariants are enforced by the
// database constraints on (provider, provider_sub) and (provider, user_id);
// concurrent inserts for the same identity therefore produce exactly one row,
// the losers get apperrors.ErrConflict.
func (r *LinkRepo) Create(link *entity.FederatedLink) error {
	err := r.db.Create(link).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: federated link already exists", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create federated link: %w", err)
	}
	return nil
}

func (r *LinkRepo) GetByProviderSub(provider, providerSub string) (*entity.FederatedLink, error) {
	var link entity.FederatedLink
	err := r.db.
		Where("provider = ? AND provider_sub = ?", provider, providerSub).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link by provider_sub: %w", err)
	}
	return &link, nil
}

func (r *LinkRepo) GetByUserAndProvider(userID, provider string) (*entity.FederatedLink, error) {
	var link entity.FederatedLink
	err := r.db.
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link by user/provider: %w", err)
	}
	return &link, nil
}

func (r *LinkRepo) ListByUser(userID string) ([]entity.FederatedLink, error) {
	var links []entity.FederatedLink
	if err := r.db.Where("user_id = ?", userID).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list links for user: %w", err)
	}
	return links, nil
}

func (r *LinkRepo) ListAll() ([]entity.FederatedLink, error) {
	var links []entity.FederatedLink
	if err := r.db.Order("provider, created_at").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

func (r *LinkRepo) DeleteByUserAndProvider(userID, provider string) error {
	return r.db.
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&entity.FederatedLink{}).Error
}

func (r *LinkRepo) DeleteByUserID(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&entity.FederatedLink{}).Error
}
