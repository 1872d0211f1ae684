package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// LearnerCredit is the denormalized balance for a learner/instructor pair.
// It is rebuilt from CreditLedgerEntry rows in the same transaction as every append.
type LearnerCredit struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LearnerID             uuid.UUID `gorm:"column:learner_id;type:uuid;not null"`
	InstructorID          uuid.UUID `gorm:"column:instructor_id;type:uuid;not null"`
	TotalPurchasedMinutes int64     `gorm:"column:total_purchased_minutes;not null;default:0"`
	UsedMinutes           int64     `gorm:"column:used_minutes;not null;default:0"`
	AdjustedMinutes       int64     `gorm:"column:adjusted_minutes;not null;default:0"`
	HourlyRatePence       int64     `gorm:"column:hourly_rate_pence;not null;default:0"`
	Version               int64     `gorm:"column:version;not null;default:0"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// RemainingMinutes is purchased plus adjustments minus consumption.
func (c LearnerCredit) RemainingMinutes() int64 {
	return c.TotalPurchasedMinutes + c.AdjustedMinutes - c.UsedMinutes
}

// CreditLedgerEntry is append-only; rows are never updated or deleted.
type CreditLedgerEntry struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LearnerID    uuid.UUID          `gorm:"column:learner_id;type:uuid;not null"`
	InstructorID uuid.UUID          `gorm:"column:instructor_id;type:uuid;not null"`
	DeltaMinutes int64              `gorm:"column:delta_minutes;not null"`
	Source       enums.CreditSource `gorm:"column:source;type:credit_source;not null"`
	BookingID    *uuid.UUID         `gorm:"column:booking_id;type:uuid"`
	PaymentID    *uuid.UUID         `gorm:"column:payment_id;type:uuid"`
	Note         string             `gorm:"column:note;not null;default:''"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger"
}
