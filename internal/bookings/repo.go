package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
)

// EligibleLesson is a completed, paid lesson that can be settled to its instructor.
type EligibleLesson struct {
	BookingID             uuid.UUID `gorm:"column:booking_id"`
	PaymentID             uuid.UUID `gorm:"column:payment_id"`
	InstructorID          uuid.UUID `gorm:"column:instructor_id"`
	InstructorAmountPence int64     `gorm:"column:instructor_amount_pence"`
	PlatformFeePence      int64     `gorm:"column:platform_fee_pence"`
	EndAt                 time.Time `gorm:"column:end_at"`
}

// Repository manages bookings and the payout-eligibility query.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus) (bool, error)
	ListPayoutEligible(ctx context.Context, start, end time.Time) ([]EligibleLesson, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// LockByID loads the booking with a row lock; use inside a transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListPayoutEligible returns completed lessons ending in [start, end) whose
// payment succeeded and was made by the booking's learner to its instructor,
// ordered by instructor, end time, then payment age.
func (r *repository) ListPayoutEligible(ctx context.Context, start, end time.Time) ([]EligibleLesson, error) {
	var lessons []EligibleLesson
	err := r.db.WithContext(ctx).
		Table("bookings AS b").
		Select(`b.id AS booking_id,
			p.id AS payment_id,
			b.instructor_id AS instructor_id,
			p.instructor_amount_pence AS instructor_amount_pence,
			p.platform_fee_pence AS platform_fee_pence,
			b.end_at AS end_at`).
		Joins("JOIN payments AS p ON p.booking_id = b.id AND p.instructor_id = b.instructor_id AND p.learner_id = b.learner_id").
		Where("b.status = ?", enums.BookingStatusCompleted).
		Where("p.status = ?", enums.PaymentStatusSucceeded).
		Where("b.end_at >= ? AND b.end_at < ?", start, end).
		Order("b.instructor_id ASC").
		Order("b.end_at ASC").
		Order("p.created_at ASC").
		Scan(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}
