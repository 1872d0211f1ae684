package discounts

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/pkg/db/models"
)

// Repository manages discount code persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
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

// FindActiveByCode matches codes case-insensitively. Validity windows and usage
// caps are left to the caller.
func (r *repository) FindActiveByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	if err := r.db.WithContext(ctx).
		Where("UPPER(code) = ? AND is_active = ?", strings.ToUpper(strings.TrimSpace(code)), true).
		First(&discount).Error; err != nil {
		return nil, err
	}
	return &discount, nil
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.DiscountCode{}).
		Where("id = ?", id).
		Update("times_used", gorm.Expr("times_used + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
