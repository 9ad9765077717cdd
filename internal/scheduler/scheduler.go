package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSweepExpired   = "sweep_expired"
	JobReconcileDrift = "reconcile_drift"
	JobReprocessFull  = "reprocess_full"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	Discounts discountdomain.Service
	GenID     *snowflake.Node
	Clock     clock.Clock
	Metrics   *metrics.SyncMetrics `optional:"true"`
	Config    Config               `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs of the discount pipeline
// against every shop that has stored discounts.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	discounts discountdomain.Service
	metrics   *metrics.SyncMetrics

	mu            sync.Mutex
	lastReprocess map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Discounts == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		discounts:     p.Discounts,
		metrics:       p.Metrics,
		lastReprocess: make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobSweepExpired, s.isJobEnabled(JobSweepExpired), func(ctx context.Context) error {
			return s.runJob(ctx, JobSweepExpired, s.cfg.JobTimeout, s.SweepExpiredJob)
		}},
		{JobReconcileDrift, s.isJobEnabled(JobReconcileDrift), func(ctx context.Context) error {
			return s.runJob(ctx, JobReconcileDrift, s.cfg.JobTimeout, s.ReconcileDriftJob)
		}},
		{JobReprocessFull, s.cfg.ReprocessEnabled && s.isJobEnabled(JobReprocessFull), func(ctx context.Context) error {
			return s.runJob(ctx, JobReprocessFull, s.cfg.ReprocessTimeout, s.ReprocessFullJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, name := range s.cfg.EnabledJobs {
		if name == jobName {
			return true
		}
	}
	return false
}

// SweepExpiredJob removes expired discounts for every known shop.
func (s *Scheduler) SweepExpiredJob(ctx context.Context) error {
	return s.forEachShop(ctx, func(ctx context.Context, run *jobRun, shop string) error {
		res := s.discounts.Sweep(ctx, shop)
		run.AddProcessed(res.Cleaned)
		return nil
	})
}

// ReconcileDriftJob backfills missing live rows for shops whose stored and
// live counts have drifted apart.
func (s *Scheduler) ReconcileDriftJob(ctx context.Context) error {
	return s.forEachShop(ctx, func(ctx context.Context, run *jobRun, shop string) error {
		drift, err := s.discounts.HasDrift(ctx, shop)
		if err != nil {
			return err
		}
		if !drift {
			return nil
		}
		res, err := s.discounts.Reconcile(ctx, shop)
		if err != nil {
			return err
		}
		run.AddProcessed(res.Backfilled)
		return nil
	})
}

// ReprocessFullJob re-syncs every discount of a shop once per ReprocessEvery.
// Existing live statuses are kept.
func (s *Scheduler) ReprocessFullJob(ctx context.Context) error {
	return s.forEachShop(ctx, func(ctx context.Context, run *jobRun, shop string) error {
		now := s.clock.Now()
		if !s.reprocessDue(shop, now) {
			return nil
		}
		res, err := s.discounts.ReprocessAll(ctx, shop, discountdomain.Routine)
		if errors.Is(err, discountdomain.ErrReprocessRunning) {
			s.logger(ctx).Info("scheduler.reprocess.skipped", zap.String("shop", shop))
			return nil
		}
		if err != nil {
			return err
		}
		s.markReprocessed(shop, now)
		run.AddProcessed(res.Processed)
		return nil
	})
}

func (s *Scheduler) reprocessDue(shop string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastReprocess[shop]
	return !ok || now.Sub(last) >= s.cfg.ReprocessEvery
}

func (s *Scheduler) markReprocessed(shop string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReprocess[shop] = at
}

// forEachShop applies fn to every shop. A failing shop is logged and does not
// stop the rest; the joined failures are returned.
func (s *Scheduler) forEachShop(ctx context.Context, fn func(ctx context.Context, run *jobRun, shop string) error) error {
	run := jobRunFromContext(ctx)
	shops, err := s.discounts.ListShops(ctx)
	if err != nil {
		return err
	}
	if run != nil {
		run.shopCount = len(shops)
	}

	var errs error
	for _, shop := range shops {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		shopCtx := s.withLogContext(ctx, shop)
		if err := fn(shopCtx, run, shop); err != nil {
			s.logShopError(ctx, run, shop, err)
			errs = errors.Join(errs, fmt.Errorf("%s: %w", shop, err))
		}
	}
	return errs
}
