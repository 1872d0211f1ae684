package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

func TestRefundSplitFullRefundMatchesOriginal(t *testing.T) {
	share, err := RefundSplit(7080, 7080, 1080)
	require.NoError(t, err)
	assert.Equal(t, int64(1080), share.PlatformFeeRefundPence)
	assert.Equal(t, int64(6000), share.InstructorRefundPence)
}

func TestRefundSplitUsesStoredRatioNotCurrentRate(t *testing.T) {
	// charged at 10%: base 1000, fee 100, total 1100
	share, err := RefundSplit(550, 1100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50), share.PlatformFeeRefundPence)
	assert.Equal(t, int64(500), share.InstructorRefundPence)
}

func TestRefundSplitPartsAlwaysSum(t *testing.T) {
	for refund := int64(0); refund <= 7080; refund += 113 {
		share, err := RefundSplit(refund, 7080, 1080)
		require.NoError(t, err)
		require.Equal(t, refund, share.PlatformFeeRefundPence+share.InstructorRefundPence)
		require.GreaterOrEqual(t, share.PlatformFeeRefundPence, int64(0))
	}
}

func TestRefundSplitEdgeCases(t *testing.T) {
	share, err := RefundSplit(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, RefundShare{}, share)

	_, err = RefundSplit(8000, 7080, 1080)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))

	_, err = RefundSplit(-1, 7080, 1080)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount))
}
