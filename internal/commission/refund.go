package commission

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// RefundShare splits a refunded amount between platform and instructor.
type RefundShare struct {
	AmountPence            int64
	PlatformFeeRefundPence int64
	InstructorRefundPence  int64
}

// RefundSplit derives the platform share from the original payment's stored
// fee/total ratio, so a later change to the fee percentage does not skew refunds.
func RefundSplit(refund, originalTotal, originalFee int64) (RefundShare, error) {
	if err := requireNonNegative("refund amount", refund); err != nil {
		return RefundShare{}, err
	}
	if err := requireNonNegative("original total", originalTotal); err != nil {
		return RefundShare{}, err
	}
	if err := requireNonNegative("original fee", originalFee); err != nil {
		return RefundShare{}, err
	}
	if refund > originalTotal {
		return RefundShare{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "refund exceeds original payment").
			WithDetails(map[string]any{"refundPence": refund, "totalPence": originalTotal})
	}
	if originalFee > originalTotal {
		return RefundShare{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "original fee exceeds original total")
	}

	var fee int64
	if originalTotal > 0 {
		fee = roundPence(decimal.NewFromInt(refund).Mul(decimal.NewFromInt(originalFee)).Div(decimal.NewFromInt(originalTotal)))
	}
	if fee > refund {
		fee = refund
	}
	return RefundShare{
		AmountPence:            refund,
		PlatformFeeRefundPence: fee,
		InstructorRefundPence:  refund - fee,
	}, nil
}
