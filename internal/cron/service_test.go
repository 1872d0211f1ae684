package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/metrics"
)

type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeLocker) Acquire(_ context.Context, job string) (Lease, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[job] {
		return nil, false, nil
	}
	f.held[job] = true
	return fakeLease{locker: f, job: job}, true, nil
}

type fakeLease struct {
	locker *fakeLocker
	job    string
}

func (l fakeLease) Release(context.Context) error {
	l.locker.held[l.job] = false
	l.locker.released = append(l.locker.released, l.job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, locker Locker, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	registry := NewRegistry()
	for _, job := range jobs {
		require.NoError(t, registry.Register("0 6 * * 5", job))
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return service
}

func TestRunNowExecutesJobAndReleasesLock(t *testing.T) {
	locker := &fakeLocker{}
	reg := prometheus.NewRegistry()
	job := &testJob{name: "weekly-payouts"}
	service := newTestService(t, locker, reg, job)

	require.NoError(t, service.RunNow(context.Background(), "weekly-payouts"))
	require.Equal(t, 1, job.runs)
	require.Equal(t, []string{"weekly-payouts"}, locker.released)

	count, err := testutil.GatherAndCount(reg, "lplate_cron_job_success_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunNowSkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{"weekly-payouts": true}}
	reg := prometheus.NewRegistry()
	job := &testJob{name: "weekly-payouts"}
	service := newTestService(t, locker, reg, job)

	require.NoError(t, service.RunNow(context.Background(), "weekly-payouts"))
	require.Zero(t, job.runs)
	require.Empty(t, locker.released)
	require.True(t, locker.held["weekly-payouts"])

	count, err := testutil.GatherAndCount(reg, "lplate_cron_job_success_total", "lplate_cron_job_failure_total")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRunNowWithoutMetrics(t *testing.T) {
	locker := &fakeLocker{}
	job := &testJob{name: "weekly-payouts"}
	service := newTestService(t, locker, nil, job)

	require.NoError(t, service.RunNow(context.Background(), "weekly-payouts"))
	require.Equal(t, 1, job.runs)
}

func TestRunNowReportsJobAndLockFailures(t *testing.T) {
	boom := errors.New("boom")
	job := &testJob{name: "payout-retries", err: boom}
	locker := &fakeLocker{}
	service := newTestService(t, locker, prometheus.NewRegistry(), job)

	err := service.RunNow(context.Background(), "payout-retries")
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"payout-retries"}, locker.released)

	locker.err = errors.New("redis down")
	require.ErrorContains(t, service.RunNow(context.Background(), "payout-retries"), "redis down")
	require.Equal(t, 1, job.runs)

	require.Error(t, service.RunNow(context.Background(), "missing"))
}

func TestRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeLocker{}, nil, &testJob{name: "weekly-payouts"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Locker: &fakeLocker{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})})
	require.Error(t, err)
}
