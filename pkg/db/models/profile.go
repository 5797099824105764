package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Profile mirrors an identity-provider user. ID is the token subject. Email
// is nil for subjects the provider issued without one, such as phone sign-ins.
type Profile struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email       *string           `gorm:"column:email"`
	DisplayName *string           `gorm:"column:display_name"`
	Role        enums.ProfileRole `gorm:"column:role;type:text;not null;default:'customer'"`
	TenantID    *uuid.UUID        `gorm:"column:tenant_id;type:uuid"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }
