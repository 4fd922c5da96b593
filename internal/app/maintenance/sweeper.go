package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lifelink/lifelink/internal/services"
	"github.com/lifelink/lifelink/pkg/logger"
)

const (
	defaultExpirySpec = "@every 1m"
	defaultRerankSpec = "@every 5m"
)

// Sweeper runs the background maintenance jobs: expiring overdue alerts and
// periodically re-ranking the responders of every active alert.
type Sweeper struct {
	alerts *services.AlertService
	cron   *cron.Cron
	log    *zap.Logger

	expirySchedule string
	rerankSchedule string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithExpirySchedule overrides the cron specification for the expiry sweep.
func WithExpirySchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.expirySchedule = spec
		}
	}
}

// WithRerankSchedule overrides the cron specification for the re-ranking sweep.
func WithRerankSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.rerankSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(alerts *services.AlertService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		alerts:         alerts,
		expirySchedule: defaultExpirySpec,
		rerankSchedule: defaultRerankSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper
}

// Start registers the sweep jobs with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if s.alerts == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.expirySchedule, func() {
		if err := s.sweepExpired(context.Background()); err != nil {
			s.log.Warn("expiry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.rerankSchedule, func() {
		if err := s.sweepRankings(context.Background()); err != nil {
			s.log.Warn("re-ranking sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes both sweeps sequentially. Primarily used in tests and
// during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.alerts == nil {
		return nil
	}

	var errs error
	if err := s.sweepExpired(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.sweepRankings(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (s *Sweeper) sweepExpired(ctx context.Context) error {
	swept, err := s.alerts.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		s.log.Info("alerts expired", zap.Int("count", swept))
	}
	return nil
}

// sweepRankings refreshes rankings alert by alert. A failure on one alert is
// collected and the sweep continues with the rest.
func (s *Sweeper) sweepRankings(ctx context.Context) error {
	ids, err := s.alerts.ActiveAlertIDs(ctx)
	if err != nil {
		return err
	}

	var errs error
	for _, id := range ids {
		if err := s.alerts.RefreshRankings(ctx, id); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
