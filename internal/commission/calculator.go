// Package commission holds the platform's money arithmetic. Amounts are integer
// pence; percentages are applied with decimal math and rounded half-up to whole
// pence so the same inputs always produce the same split.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

var (
	hundred = decimal.NewFromInt(100)
	sixty   = decimal.NewFromInt(60)
)

// Breakdown is what a learner pays and how it splits. InstructorAmount is the
// discounted base; the platform fee is added on top of it, never taken out.
type Breakdown struct {
	BasePence             int64 `json:"base_pence"`
	DiscountPence         int64 `json:"discount_pence"`
	DiscountedBasePence   int64 `json:"discounted_base_pence"`
	PlatformFeePence      int64 `json:"platform_fee_pence"`
	TotalPence            int64 `json:"total_pence"`
	InstructorAmountPence int64 `json:"instructor_amount_pence"`
	FeePercent            int   `json:"fee_percent"`
}

// Calculator applies a fixed platform fee percentage.
type Calculator struct {
	percent int
	rate    decimal.Decimal
}

func NewCalculator(feePercent int) (*Calculator, error) {
	if feePercent < 0 || feePercent > 100 {
		return nil, fmt.Errorf("platform fee percent must be within [0,100], got %d", feePercent)
	}
	return &Calculator{
		percent: feePercent,
		rate:    decimal.NewFromInt(int64(feePercent)).Div(hundred),
	}, nil
}

func (c *Calculator) FeePercent() int {
	return c.percent
}

// PlatformFee returns round(base * fee% / 100).
func (c *Calculator) PlatformFee(base int64) (int64, error) {
	if err := requireNonNegative("base amount", base); err != nil {
		return 0, err
	}
	return roundPence(decimal.NewFromInt(base).Mul(c.rate)), nil
}

// TotalPayable is base plus the platform fee. Only the fee is rounded, so
// total - base always equals PlatformFee(base).
func (c *Calculator) TotalPayable(base int64) (int64, error) {
	fee, err := c.PlatformFee(base)
	if err != nil {
		return 0, err
	}
	return base + fee, nil
}

// Breakdown computes the split for an undiscounted base.
func (c *Calculator) Breakdown(base int64) (Breakdown, error) {
	return c.DiscountedBreakdown(base, 0)
}

// DiscountedBreakdown subtracts discount from base first and charges the fee
// on what remains.
func (c *Calculator) DiscountedBreakdown(base, discount int64) (Breakdown, error) {
	if err := requireNonNegative("base amount", base); err != nil {
		return Breakdown{}, err
	}
	if err := requireNonNegative("discount amount", discount); err != nil {
		return Breakdown{}, err
	}
	if discount > base {
		discount = base
	}
	discounted := base - discount
	fee, err := c.PlatformFee(discounted)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		BasePence:             base,
		DiscountPence:         discount,
		DiscountedBasePence:   discounted,
		PlatformFeePence:      fee,
		TotalPence:            discounted + fee,
		InstructorAmountPence: discounted,
		FeePercent:            c.percent,
	}, nil
}

// LessonBase prices a lesson of the given length at an hourly rate.
func LessonBase(hourlyRatePence, minutes int64) (int64, error) {
	if err := requireNonNegative("hourly rate", hourlyRatePence); err != nil {
		return 0, err
	}
	if err := requireNonNegative("duration", minutes); err != nil {
		return 0, err
	}
	return roundPence(decimal.NewFromInt(hourlyRatePence).Mul(decimal.NewFromInt(minutes)).Div(sixty)), nil
}

// HoursToMinutes converts a possibly fractional hour count to whole minutes.
func HoursToMinutes(hours decimal.Decimal) (int64, error) {
	if !hours.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "hours must be greater than zero").
			WithDetails(map[string]any{"hours": hours.String()})
	}
	minutes := hours.Mul(sixty).Round(0)
	if !minutes.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "hours must amount to at least one minute").
			WithDetails(map[string]any{"hours": hours.String()})
	}
	return minutes.IntPart(), nil
}

func roundPence(d decimal.Decimal) int64 {
	// Round(0) rounds half away from zero, which is half-up for non-negative input.
	return d.Round(0).IntPart()
}

func requireNonNegative(field string, amount int64) error {
	if amount < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, fmt.Sprintf("%s must not be negative", field)).
			WithDetails(map[string]any{"field": field, "amount": amount})
	}
	return nil
}
