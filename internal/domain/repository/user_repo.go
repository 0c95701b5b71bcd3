package repository

import (
	"github.com/yourusername/identity-api/internal/domain/entity"
)

// UserRepository defines host account store operations the identity core needs.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id string) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	GetByUsername(username string) (*entity.User, error)
	EmailExists(email string) (bool, error)
	UsernameExists(username string) (bool, error)
	UpdateProfile(userID string, updates map[string]interface{}) error
	UpdatePassword(userID string, newPassword string) error
	Activate(userID string) error
	Delete(userID string) error
	List(limit, offset int) ([]entity.User, error)
}
