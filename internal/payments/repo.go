package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
)

// BookingLiveConstraint allows one pending or succeeded payment per booking.
const BookingLiveConstraint = "payments_booking_live_key"

// LiveStatuses are the payment statuses that count as paying for a booking.
var LiveStatuses = []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusSucceeded}

// Repository manages payment and refund rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	LockByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	HasLiveForBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)
	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefundByStripeID(ctx context.Context, stripeRefundID string) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, id uuid.UUID, status enums.RefundStatus) error
	SumRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds payment persistence to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// LockByIntentID loads the payment with a row lock; use inside a transaction.
func (r *repository) LockByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stripe_payment_intent_id = ?", intentID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus moves a payment from one status to another. It reports false
// when the row was no longer in the expected status.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasLiveForBooking reports whether a pending or succeeded payment already
// covers the booking.
func (r *repository) HasLiveForBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("booking_id = ? AND status IN ?", bookingID, LiveStatuses).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefundByStripeID(ctx context.Context, stripeRefundID string) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).
		Where("stripe_refund_id = ?", stripeRefundID).
		First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status enums.RefundStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SumRefunds totals refunds recorded against a payment, failed ones excluded.
func (r *repository) SumRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Select("COALESCE(SUM(amount_pence), 0)").
		Where("payment_id = ? AND status <> ?", paymentID, enums.RefundStatusFailed).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
