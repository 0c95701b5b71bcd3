package entity

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is a host application account. Account identifiers are opaque UUID
// strings; legacy integer ids were migrated and must never be re-derived.
type User struct {
	ID                   string     `gorm:"type:uuid;primaryKey" json:"id"`
	Username             string     `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Email                string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password             string     `gorm:"size:100;not null" json:"-"`
	PasswordAuthEnabled  bool       `gorm:"not null;default:true" json:"-"`
	FederatedAuthEnabled bool       `gorm:"not null;default:false" json:"federated_auth_enabled"`
	FirstName            string     `gorm:"size:100;not null;default:''" json:"first_name"`
	LastName             string     `gorm:"size:100;not null;default:''" json:"last_name"`
	Active               bool       `gorm:"not null;default:false" json:"active"`
	EmailVerifiedAt      *time.Time `gorm:"type:timestamp" json:"email_verified_at,omitempty"`
	DeletedAt            *time.Time `gorm:"type:timestamp" json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for GORM
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns an opaque UUID identifier if none was set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(u.ID) == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave hashes the password unless it already is a bcrypt hash.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] failed to hash password for email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword reports whether the given plaintext password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
