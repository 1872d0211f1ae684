package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

func mustCalculator(t *testing.T, pct int) *Calculator {
	t.Helper()
	calc, err := NewCalculator(pct)
	require.NoError(t, err)
	return calc
}

func TestNewCalculatorRejectsOutOfRange(t *testing.T) {
	_, err := NewCalculator(-1)
	assert.Error(t, err)
	_, err = NewCalculator(101)
	assert.Error(t, err)
	_, err = NewCalculator(100)
	assert.NoError(t, err)
}

func TestTwoHourLessonAtThirtyPounds(t *testing.T) {
	calc := mustCalculator(t, 18)

	base, err := LessonBase(3000, 120)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), base)

	b, err := calc.Breakdown(base)
	require.NoError(t, err)
	assert.Equal(t, int64(1080), b.PlatformFeePence)
	assert.Equal(t, int64(7080), b.TotalPence)
	assert.Equal(t, int64(6000), b.InstructorAmountPence)
	assert.Equal(t, 18, b.FeePercent)
}

func TestTenPercentCodeAppliedBeforeFee(t *testing.T) {
	calc := mustCalculator(t, 18)

	discount, err := ApplyDiscount(3000, enums.DiscountTypePercentage, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(300), discount)

	b, err := calc.DiscountedBreakdown(3000, discount)
	require.NoError(t, err)
	assert.Equal(t, int64(2700), b.DiscountedBasePence)
	assert.Equal(t, int64(486), b.PlatformFeePence)
	assert.Equal(t, int64(3186), b.TotalPence)
	assert.Equal(t, int64(2700), b.InstructorAmountPence)
}

func TestPlatformFeeRoundsHalfUp(t *testing.T) {
	calc := mustCalculator(t, 18)
	// 25 * 0.18 = 4.5
	fee, err := calc.PlatformFee(25)
	require.NoError(t, err)
	assert.Equal(t, int64(5), fee)
	// 24 * 0.18 = 4.32
	fee, err = calc.PlatformFee(24)
	require.NoError(t, err)
	assert.Equal(t, int64(4), fee)
}

func TestFeePlusBaseEqualsTotal(t *testing.T) {
	for pct := 0; pct <= 100; pct += 7 {
		calc := mustCalculator(t, pct)
		for base := int64(0); base <= 5000; base += 37 {
			fee, err := calc.PlatformFee(base)
			require.NoError(t, err)
			total, err := calc.TotalPayable(base)
			require.NoError(t, err)
			require.GreaterOrEqual(t, fee, int64(0))
			require.Equal(t, total, base+fee, "pct=%d base=%d", pct, base)
			require.GreaterOrEqual(t, total, base)
		}
	}
}

func TestNegativeInputsRejected(t *testing.T) {
	calc := mustCalculator(t, 18)

	_, err := calc.PlatformFee(-1)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))

	_, err = calc.TotalPayable(-100)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))

	_, err = calc.DiscountedBreakdown(100, -1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))

	_, err = LessonBase(-5, 60)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))
}

func TestDiscountedBreakdownClampsOversizedDiscount(t *testing.T) {
	calc := mustCalculator(t, 18)
	b, err := calc.DiscountedBreakdown(1000, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.DiscountPence)
	assert.Equal(t, int64(0), b.TotalPence)
}

func TestHoursToMinutes(t *testing.T) {
	minutes, err := HoursToMinutes(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(90), minutes)

	minutes, err = HoursToMinutes(decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(180), minutes)

	_, err = HoursToMinutes(decimal.Zero)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = HoursToMinutes(decimal.RequireFromString("0.001"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
