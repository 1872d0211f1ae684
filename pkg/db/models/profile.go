package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// Profile mirrors the hosted auth user; id matches the token subject.
type Profile struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email     string     `gorm:"column:email;not null;uniqueIndex"`
	FullName  string     `gorm:"column:full_name;not null"`
	Role      enums.Role `gorm:"column:role;type:profile_role;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Instructor extends a profile with the listing fields used for pricing.
type Instructor struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	HourlyRatePence int64     `gorm:"column:hourly_rate_pence;not null"`
	IsActive        bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
