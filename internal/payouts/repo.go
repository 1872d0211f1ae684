package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	"github.com/lplate/lplate-backend/pkg/pagination"
)

// ErrVersionConflict is returned when a payout changed underneath a writer.
var ErrVersionConflict = errors.New("payout version conflict")

// HistoryQuery selects an instructor's payouts, newest payout date first.
type HistoryQuery struct {
	InstructorID uuid.UUID
	Cursor       *pagination.Cursor
	Limit        int
}

// Repository persists payouts and the payments they settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByInstructorAndDate(ctx context.Context, instructorID uuid.UUID, payoutDate time.Time) (*models.Payout, error)
	FindByTransferID(ctx context.Context, transferID string) (*models.Payout, error)
	LinkPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) error
	ListPaymentIDs(ctx context.Context, payoutID uuid.UUID) ([]uuid.UUID, error)
	Save(ctx context.Context, payout *models.Payout) error
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.Payout, error)
	History(ctx context.Context, query HistoryQuery) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindByInstructorAndDate matches the calendar day rather than an exact
// timestamp so date and timestamp column types behave the same.
func (r *repository) FindByInstructorAndDate(ctx context.Context, instructorID uuid.UUID, payoutDate time.Time) (*models.Payout, error) {
	day := CalendarDay(payoutDate)
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Where("payout_date >= ? AND payout_date < ?", day, day.AddDate(0, 0, 1)).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("stripe_transfer_id = ?", transferID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) LinkPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) error {
	if len(paymentIDs) == 0 {
		return nil
	}
	links := make([]models.PayoutPayment, 0, len(paymentIDs))
	for _, id := range paymentIDs {
		links = append(links, models.PayoutPayment{PayoutID: payoutID, PaymentID: id})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&links).Error
}

func (r *repository) ListPaymentIDs(ctx context.Context, payoutID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutPayment{}).
		Where("payout_id = ?", payoutID).
		Order("payment_id ASC").
		Pluck("payment_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Save writes the mutable payout fields and bumps version, guarded by the
// version the caller read.
func (r *repository) Save(ctx context.Context, payout *models.Payout) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND version = ?", payout.ID, payout.Version).
		Updates(map[string]any{
			"status":             payout.Status,
			"stripe_account_id":  payout.StripeAccountID,
			"stripe_transfer_id": payout.StripeTransferID,
			"failure_reason":     payout.FailureReason,
			"attempts":           payout.Attempts,
			"version":            payout.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	payout.Version++
	return nil
}

func (r *repository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Where("status = ?", enums.PayoutStatusFailed)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	var payouts []models.Payout
	if err := query.Order("payout_date ASC").Order("id ASC").Limit(limit).Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) History(ctx context.Context, q HistoryQuery) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Where("instructor_id = ?", q.InstructorID)
	if q.Cursor != nil {
		query = query.Where("((payout_date < ?) OR (payout_date = ? AND id < ?))", q.Cursor.At, q.Cursor.At, q.Cursor.ID)
	}
	var payouts []models.Payout
	if err := query.
		Order("payout_date DESC").
		Order("id DESC").
		Limit(q.Limit + 1).
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
