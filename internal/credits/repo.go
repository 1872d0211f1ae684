package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	"github.com/lplate/lplate-backend/pkg/pagination"
)

// ErrVersionConflict is returned when a balance row changed underneath a writer.
var ErrVersionConflict = errors.New("learner credit version conflict")

// EntryQuery selects ledger rows newest first.
type EntryQuery struct {
	LearnerID    uuid.UUID
	InstructorID uuid.UUID
	Cursor       *pagination.Cursor
	Limit        int
}

// Repository persists balances and their ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureBalance(ctx context.Context, learnerID, instructorID uuid.UUID) error
	LockBalance(ctx context.Context, learnerID, instructorID uuid.UUID) (*models.LearnerCredit, error)
	FindBalance(ctx context.Context, learnerID, instructorID uuid.UUID) (*models.LearnerCredit, error)
	SaveBalance(ctx context.Context, credit *models.LearnerCredit) error
	ListBalances(ctx context.Context, learnerID uuid.UUID, instructorID *uuid.UUID) ([]models.LearnerCredit, error)
	AppendEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	HasPurchaseForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error)
	SumDeltas(ctx context.Context, learnerID, instructorID uuid.UUID) (int64, error)
	ListEntries(ctx context.Context, query EntryQuery) ([]models.CreditLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureBalance inserts an empty balance row for the pair unless one exists.
func (r *repository) EnsureBalance(ctx context.Context, learnerID, instructorID uuid.UUID) error {
	credit := &models.LearnerCredit{LearnerID: learnerID, InstructorID: instructorID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "learner_id"}, {Name: "instructor_id"}},
			DoNothing: true,
		}).
		Create(credit).Error
}

func (r *repository) LockBalance(ctx context.Context, learnerID, instructorID uuid.UUID) (*models.LearnerCredit, error) {
	var credit models.LearnerCredit
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("learner_id = ? AND instructor_id = ?", learnerID, instructorID).
		First(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

func (r *repository) FindBalance(ctx context.Context, learnerID, instructorID uuid.UUID) (*models.LearnerCredit, error) {
	var credit models.LearnerCredit
	if err := r.db.WithContext(ctx).
		Where("learner_id = ? AND instructor_id = ?", learnerID, instructorID).
		First(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

// SaveBalance writes the counters and bumps version, guarded by the version
// the caller read.
func (r *repository) SaveBalance(ctx context.Context, credit *models.LearnerCredit) error {
	res := r.db.WithContext(ctx).
		Model(&models.LearnerCredit{}).
		Where("id = ? AND version = ?", credit.ID, credit.Version).
		Updates(map[string]any{
			"total_purchased_minutes": credit.TotalPurchasedMinutes,
			"used_minutes":            credit.UsedMinutes,
			"adjusted_minutes":        credit.AdjustedMinutes,
			"hourly_rate_pence":       credit.HourlyRatePence,
			"version":                 credit.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	credit.Version++
	return nil
}

func (r *repository) ListBalances(ctx context.Context, learnerID uuid.UUID, instructorID *uuid.UUID) ([]models.LearnerCredit, error) {
	query := r.db.WithContext(ctx).Where("learner_id = ?", learnerID)
	if instructorID != nil {
		query = query.Where("instructor_id = ?", *instructorID)
	}
	var credits []models.LearnerCredit
	if err := query.Order("created_at ASC").Find(&credits).Error; err != nil {
		return nil, err
	}
	return credits, nil
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) HasPurchaseForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditLedgerEntry{}).
		Where("payment_id = ? AND source = ?", paymentID, enums.CreditSourcePurchase).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) SumDeltas(ctx context.Context, learnerID, instructorID uuid.UUID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditLedgerEntry{}).
		Select("COALESCE(SUM(delta_minutes), 0)").
		Where("learner_id = ? AND instructor_id = ?", learnerID, instructorID).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListEntries(ctx context.Context, q EntryQuery) ([]models.CreditLedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("learner_id = ? AND instructor_id = ?", q.LearnerID, q.InstructorID)
	if q.Cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", q.Cursor.At, q.Cursor.At, q.Cursor.ID)
	}
	var entries []models.CreditLedgerEntry
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(q.Limit + 1).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
