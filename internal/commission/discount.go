package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// ApplyDiscount returns the discount in pence for base; it never exceeds base.
// Percentage values are whole percents, fixed values are pence.
func ApplyDiscount(base int64, discountType enums.DiscountType, value int64) (int64, error) {
	if err := requireNonNegative("base amount", base); err != nil {
		return 0, err
	}
	if err := requireNonNegative("discount value", value); err != nil {
		return 0, err
	}

	var discount int64
	switch discountType {
	case enums.DiscountTypePercentage:
		discount = roundPence(decimal.NewFromInt(base).Mul(decimal.NewFromInt(value)).Div(hundred))
	case enums.DiscountTypeFixedAmount:
		discount = value
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported discount type %q", discountType))
	}
	if discount > base {
		discount = base
	}
	return discount, nil
}
