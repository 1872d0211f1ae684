package connect

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/pkg/db/models"
)

// Flags is the capability snapshot copied from account.updated events.
type Flags struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Requirements     json.RawMessage
}

// Repository persists connected account rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.StripeConnectAccount) error
	FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error)
	FindByStripeAccountID(ctx context.Context, stripeAccountID string) (*models.StripeConnectAccount, error)
	ListByInstructorIDs(ctx context.Context, instructorIDs []uuid.UUID) ([]models.StripeConnectAccount, error)
	UpdateFlags(ctx context.Context, stripeAccountID string, flags Flags) (bool, error)
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

func (r *repository) Create(ctx context.Context, account *models.StripeConnectAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*models.StripeConnectAccount, error) {
	var account models.StripeConnectAccount
	if err := r.db.WithContext(ctx).Where("instructor_id = ?", instructorID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByStripeAccountID(ctx context.Context, stripeAccountID string) (*models.StripeConnectAccount, error) {
	var account models.StripeConnectAccount
	if err := r.db.WithContext(ctx).Where("stripe_account_id = ?", stripeAccountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ListByInstructorIDs(ctx context.Context, instructorIDs []uuid.UUID) ([]models.StripeConnectAccount, error) {
	if len(instructorIDs) == 0 {
		return nil, nil
	}
	var accounts []models.StripeConnectAccount
	if err := r.db.WithContext(ctx).Where("instructor_id IN ?", instructorIDs).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateFlags overwrites the capability flags. It reports false when no row
// carries the account id.
func (r *repository) UpdateFlags(ctx context.Context, stripeAccountID string, flags Flags) (bool, error) {
	updates := map[string]any{
		"charges_enabled":   flags.ChargesEnabled,
		"payouts_enabled":   flags.PayoutsEnabled,
		"details_submitted": flags.DetailsSubmitted,
	}
	if len(flags.Requirements) > 0 {
		updates["requirements"] = flags.Requirements
	}
	res := r.db.WithContext(ctx).
		Model(&models.StripeConnectAccount{}).
		Where("stripe_account_id = ?", stripeAccountID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
