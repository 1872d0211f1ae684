package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/lplate/lplate-backend/internal/payouts"
	"github.com/lplate/lplate-backend/pkg/logger"
)

const (
	PayoutJobName      = "weekly-payouts"
	PayoutRetryJobName = "payout-retries"
)

type payoutRunner interface {
	Run(ctx context.Context, date time.Time) (*payouts.BatchResult, error)
	RetryAllFailed(ctx context.Context) (*payouts.RetryResult, error)
}

type PayoutJobParams struct {
	Logger   *logger.Logger
	Payouts  payoutRunner
	Location *time.Location
}

// NewPayoutJob runs the batch for the current calendar day in the payout
// timezone. It is scheduled on Fridays; any other day fails in the batcher.
func NewPayoutJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &payoutJob{
		logg:     params.Logger,
		payouts:  params.Payouts,
		location: location,
		now:      time.Now,
	}, nil
}

type payoutJob struct {
	logg     *logger.Logger
	payouts  payoutRunner
	location *time.Location
	now      func() time.Time
}

func (j *payoutJob) Name() string { return PayoutJobName }

func (j *payoutJob) Run(ctx context.Context) error {
	local := j.now().In(j.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	result, err := j.payouts.Run(ctx, today)
	if err != nil {
		return fmt.Errorf("weekly payouts %s: %w", today.Format(payouts.DateLayout), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"payout_date":       result.PayoutDate,
		"succeeded":         result.Succeeded,
		"failed":            result.Failed,
		"existing":          result.Existing,
		"skipped":           result.Skipped,
		"transferred_pence": result.TransferredPence,
		"lesson_count":      result.LessonCount,
	}), "weekly payouts complete")
	if result.Failed > 0 {
		return fmt.Errorf("weekly payouts %s: %d instructor payouts failed", result.PayoutDate, result.Failed)
	}
	return nil
}

// NewPayoutRetryJob re-drives failed payouts below the attempt limit.
func NewPayoutRetryJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutRetryJob{logg: params.Logger, payouts: params.Payouts}, nil
}

type payoutRetryJob struct {
	logg    *logger.Logger
	payouts payoutRunner
}

func (j *payoutRetryJob) Name() string { return PayoutRetryJobName }

func (j *payoutRetryJob) Run(ctx context.Context) error {
	result, err := j.payouts.RetryAllFailed(ctx)
	if err != nil {
		return fmt.Errorf("payout retries: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"retried":           len(result.Payouts),
		"succeeded":         result.Succeeded,
		"failed":            result.Failed,
		"transferred_pence": result.TransferredPence,
	}), "payout retries complete")
	return nil
}
