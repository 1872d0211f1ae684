package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StripeConnectAccount caches the capability flags of an instructor's Express account.
type StripeConnectAccount struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InstructorID     uuid.UUID       `gorm:"column:instructor_id;type:uuid;not null;uniqueIndex"`
	StripeAccountID  string          `gorm:"column:stripe_account_id;not null;uniqueIndex"`
	ChargesEnabled   bool            `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled   bool            `gorm:"column:payouts_enabled;not null;default:false"`
	DetailsSubmitted bool            `gorm:"column:details_submitted;not null;default:false"`
	Requirements     json.RawMessage `gorm:"column:requirements;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
