package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lplate/lplate-backend/pkg/enums"
)

// Payment is immutable after creation apart from Status.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LearnerID             uuid.UUID           `gorm:"column:learner_id;type:uuid;not null"`
	InstructorID          uuid.UUID           `gorm:"column:instructor_id;type:uuid;not null"`
	BookingID             *uuid.UUID          `gorm:"column:booking_id;type:uuid"`
	TotalAmountPence      int64               `gorm:"column:total_amount_pence;not null"`
	PlatformFeePence      int64               `gorm:"column:platform_fee_pence;not null"`
	InstructorAmountPence int64               `gorm:"column:instructor_amount_pence;not null"`
	DiscountAmountPence   int64               `gorm:"column:discount_amount_pence;not null;default:0"`
	DiscountCodeID        *uuid.UUID          `gorm:"column:discount_code_id;type:uuid"`
	Currency              string              `gorm:"column:currency;not null;default:'gbp'"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'card'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex"`
	Metadata              json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Refund records a provider refund and how it splits between platform and instructor.
type Refund struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID              uuid.UUID          `gorm:"column:payment_id;type:uuid;not null"`
	StripeRefundID         string             `gorm:"column:stripe_refund_id;not null;uniqueIndex"`
	AmountPence            int64              `gorm:"column:amount_pence;not null"`
	PlatformFeeRefundPence int64              `gorm:"column:platform_fee_refund_pence;not null"`
	InstructorRefundPence  int64              `gorm:"column:instructor_refund_pence;not null"`
	Reason                 string             `gorm:"column:reason;not null"`
	Status                 enums.RefundStatus `gorm:"column:status;type:refund_status;not null"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
}
