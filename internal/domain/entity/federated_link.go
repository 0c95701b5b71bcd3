package entity

import "time"

// FederatedLink is the persisted 1:1 association between a host account and
// an external provider identity (google, facebook). Rows are never updated
// in place; relinking requires disconnect followed by connect.
type FederatedLink struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_provider_user,priority:2" json:"user_id"`
	Provider      string    `gorm:"size:32;not null;uniqueIndex:idx_provider_sub,priority:1;uniqueIndex:idx_provider_user,priority:1" json:"provider"`
	ProviderSub   string    `gorm:"size:255;not null;uniqueIndex:idx_provider_sub,priority:2" json:"provider_sub"`
	ProviderEmail string    `gorm:"size:255" json:"provider_email,omitempty"`
	DisplayName   string    `gorm:"size:255;not null;default:''" json:"display_name"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (FederatedLink) TableName() string {
	return "federated_links"
}
