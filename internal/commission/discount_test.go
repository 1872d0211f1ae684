package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

func TestPercentageDiscountStaysWithinBase(t *testing.T) {
	for base := int64(0); base <= 4000; base += 53 {
		for v := int64(0); v <= 100; v += 5 {
			d, err := ApplyDiscount(base, enums.DiscountTypePercentage, v)
			require.NoError(t, err)
			require.GreaterOrEqual(t, d, int64(0))
			require.LessOrEqual(t, d, base, "base=%d v=%d", base, v)
		}
	}
}

func TestPercentageOverHundredClamps(t *testing.T) {
	d, err := ApplyDiscount(2000, enums.DiscountTypePercentage, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), d)
}

func TestFixedDiscountIsMinOfValueAndBase(t *testing.T) {
	for base := int64(0); base <= 3000; base += 250 {
		for _, v := range []int64{0, 1, 500, 2999, 10000} {
			d, err := ApplyDiscount(base, enums.DiscountTypeFixedAmount, v)
			require.NoError(t, err)
			want := v
			if base < v {
				want = base
			}
			require.Equal(t, want, d)
		}
	}
}

func TestApplyDiscountRejectsBadInput(t *testing.T) {
	_, err := ApplyDiscount(1000, enums.DiscountTypeFixedAmount, -1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))

	_, err = ApplyDiscount(1000, "bogo", 10)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
