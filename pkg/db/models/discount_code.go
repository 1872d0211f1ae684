package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// DiscountCode value is a percentage for percentage codes and pence for fixed_amount codes.
type DiscountCode struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code          string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue int64              `gorm:"column:discount_value;not null"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	ValidFrom     *time.Time         `gorm:"column:valid_from"`
	ValidUntil    *time.Time         `gorm:"column:valid_until"`
	MaxUses       *int               `gorm:"column:max_uses"`
	TimesUsed     int                `gorm:"column:times_used;not null;default:0"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// UsableAt reports whether the code can be applied at the given instant.
func (d DiscountCode) UsableAt(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return false
	}
	if d.MaxUses != nil && d.TimesUsed >= *d.MaxUses {
		return false
	}
	return true
}
