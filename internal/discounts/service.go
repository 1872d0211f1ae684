package discounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/pkg/db/models"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/logger"
)

// Resolution is the outcome of applying a code to a base amount. Code is nil
// when nothing applies.
type Resolution struct {
	Code        *models.DiscountCode
	AmountPence int64
}

// Applied reports whether the resolution reduces the price.
func (r Resolution) Applied() bool {
	return r.Code != nil && r.AmountPence > 0
}

// Service resolves discount codes at checkout.
type Service interface {
	Resolve(ctx context.Context, code string, basePence int64, now time.Time) (Resolution, error)
	MarkUsed(ctx context.Context, res Resolution)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discounts repository required")
	}
	return &service{repo: repo, logger: logg}, nil
}

// Resolve never fails on a bad code: unknown, inactive, expired or exhausted
// codes resolve to a zero discount.
func (s *service) Resolve(ctx context.Context, code string, basePence int64, now time.Time) (Resolution, error) {
	if basePence < 0 {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "base amount must not be negative")
	}
	if strings.TrimSpace(code) == "" {
		return Resolution{}, nil
	}

	discount, err := s.repo.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Resolution{}, nil
		}
		return Resolution{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount code")
	}
	if !discount.UsableAt(now) {
		return Resolution{}, nil
	}

	amount, err := commission.ApplyDiscount(basePence, discount.DiscountType, discount.DiscountValue)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Code: discount, AmountPence: amount}, nil
}

// MarkUsed bumps the usage counter for an applied code. The payment has already
// been taken by the time this runs, so failures are logged and swallowed.
func (s *service) MarkUsed(ctx context.Context, res Resolution) {
	if !res.Applied() {
		return
	}
	if err := s.repo.IncrementUsage(ctx, res.Code.ID); err != nil && s.logger != nil {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"discount_code_id": res.Code.ID.String(),
			"error":            err.Error(),
		})
		s.logger.Warn(logCtx, "failed to increment discount code usage")
	}
}
