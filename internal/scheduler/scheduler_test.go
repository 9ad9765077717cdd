package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/promosync/internal/clock"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDiscounts struct {
	discountdomain.Service

	mu         sync.Mutex
	shops      []string
	drift      map[string]bool
	failShop   string
	sweeps     []string
	reconciles []string
	reprocess  []string
	modes      []discountdomain.Mode
	running    bool
}

func (f *fakeDiscounts) ListShops(context.Context) ([]string, error) {
	return f.shops, nil
}

func (f *fakeDiscounts) Sweep(_ context.Context, shop string) discountdomain.SweepResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps = append(f.sweeps, shop)
	return discountdomain.SweepResult{Cleaned: 1, Total: 2}
}

func (f *fakeDiscounts) HasDrift(_ context.Context, shop string) (bool, error) {
	if shop == f.failShop {
		return false, errors.New("db down")
	}
	return f.drift[shop], nil
}

func (f *fakeDiscounts) Reconcile(_ context.Context, shop string) (discountdomain.ReconcileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles = append(f.reconciles, shop)
	return discountdomain.ReconcileResult{Backfilled: 3}, nil
}

func (f *fakeDiscounts) ReprocessAll(_ context.Context, shop string, mode discountdomain.Mode) (discountdomain.ReprocessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return discountdomain.ReprocessResult{}, discountdomain.ErrReprocessRunning
	}
	f.reprocess = append(f.reprocess, shop)
	f.modes = append(f.modes, mode)
	return discountdomain.ReprocessResult{Total: 2, Processed: 2}, nil
}

type harness struct {
	sched     *Scheduler
	discounts *fakeDiscounts
	clock     *clock.FakeClock
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	fc := clock.NewFakeClock(testNow)
	discounts := &fakeDiscounts{
		shops: []string{"a.myshopify.com", "b.myshopify.com"},
		drift: map[string]bool{"b.myshopify.com": true},
	}
	sched, err := New(Params{
		Log:       zap.NewNop(),
		Discounts: discounts,
		GenID:     node,
		Clock:     fc,
		Metrics:   metrics.NewSyncMetrics(registry, metrics.Config{ServiceName: "promosync", Environment: "test"}),
		Config:    cfg,
	})
	require.NoError(t, err)
	return &harness{sched: sched, discounts: discounts, clock: fc, registry: registry}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	h := newHarness(t, Config{})

	err := h.sched.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "promosync_scheduler_job_runs_total", "timeout_job"))
	assert.Equal(t, 1.0, counterValue(t, h.registry, "promosync_scheduler_job_errors_total", "timeout_job"))
}

func TestRunJobWrapsErrors(t *testing.T) {
	h := newHarness(t, Config{})

	err := h.sched.runJob(context.Background(), "broken", time.Second, func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, "broken: boom", err.Error())
}

func TestRunJobCarriesRunID(t *testing.T) {
	h := newHarness(t, Config{})

	var runID string
	err := h.sched.runJob(context.Background(), "probe", time.Second, func(ctx context.Context) error {
		run := jobRunFromContext(ctx)
		require.NotNil(t, run)
		runID = run.runID
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
}

func TestRunOnceSweepsAndReconcilesEveryShop(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.Equal(t, []string{"a.myshopify.com", "b.myshopify.com"}, h.discounts.sweeps)
	assert.Equal(t, []string{"b.myshopify.com"}, h.discounts.reconciles)
	assert.Empty(t, h.discounts.reprocess)
	assert.Equal(t, 1.0, counterValue(t, h.registry, "promosync_scheduler_job_runs_total", JobSweepExpired))
	assert.Equal(t, 1.0, counterValue(t, h.registry, "promosync_scheduler_job_runs_total", JobReconcileDrift))
}

func TestRunOnceContinuesPastFailingShop(t *testing.T) {
	h := newHarness(t, Config{})
	h.discounts.failShop = "a.myshopify.com"

	err := h.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile_drift")
	assert.Contains(t, err.Error(), "a.myshopify.com")
	assert.Equal(t, []string{"b.myshopify.com"}, h.discounts.reconciles)
	assert.Len(t, h.discounts.sweeps, 2)
}

func TestEnabledJobsFilter(t *testing.T) {
	h := newHarness(t, Config{EnabledJobs: []string{JobReconcileDrift}})

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.discounts.sweeps)
	assert.Equal(t, []string{"b.myshopify.com"}, h.discounts.reconciles)
}

func TestReprocessFullRunsOncePerInterval(t *testing.T) {
	h := newHarness(t, Config{ReprocessEnabled: true, ReprocessEvery: time.Hour, EnabledJobs: []string{JobReprocessFull}})

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.discounts.reprocess, 2)
	for _, mode := range h.discounts.modes {
		assert.True(t, mode.PreservesExisting())
	}

	h.clock.Advance(30 * time.Minute)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.discounts.reprocess, 2)

	h.clock.Advance(30 * time.Minute)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.discounts.reprocess, 4)
}

func TestReprocessFullDisabledByDefault(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.discounts.reprocess)
}

func TestReprocessFullSkipsRunningShops(t *testing.T) {
	h := newHarness(t, Config{ReprocessEnabled: true, EnabledJobs: []string{JobReprocessFull}})
	h.discounts.running = true

	require.NoError(t, h.sched.RunOnce(context.Background()))

	h.discounts.running = false
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.discounts.reprocess, 2)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReprocessEvery)
	assert.False(t, cfg.ReprocessEnabled)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelValue(metric, "job") == job {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with job %s not found", name, job)
	return 0
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.Label {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
