package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// Payout is the weekly transfer instruction for one instructor and payout date.
type Payout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InstructorID     uuid.UUID          `gorm:"column:instructor_id;type:uuid;not null"`
	PayoutDate       time.Time          `gorm:"column:payout_date;type:date;not null"`
	PeriodStart      time.Time          `gorm:"column:period_start;not null"`
	PeriodEnd        time.Time          `gorm:"column:period_end;not null"`
	TotalAmountPence int64              `gorm:"column:total_amount_pence;not null"`
	PlatformFeePence int64              `gorm:"column:platform_fee_pence;not null"`
	NetAmountPence   int64              `gorm:"column:net_amount_pence;not null"`
	LessonCount      int                `gorm:"column:lesson_count;not null;default:0"`
	Currency         string             `gorm:"column:currency;not null;default:'gbp'"`
	Status           enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	StripeAccountID  string             `gorm:"column:stripe_account_id;not null"`
	StripeTransferID *string            `gorm:"column:stripe_transfer_id"`
	FailureReason    *string            `gorm:"column:failure_reason"`
	Attempts         int                `gorm:"column:attempts;not null;default:0"`
	Version          int64              `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutPayment links a payout to the payments it settles.
type PayoutPayment struct {
	PayoutID  uuid.UUID `gorm:"column:payout_id;type:uuid;primaryKey"`
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
