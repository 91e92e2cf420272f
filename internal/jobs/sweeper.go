package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fieldbase/fieldbase/internal/models"
	"github.com/fieldbase/fieldbase/internal/services"
	"github.com/fieldbase/fieldbase/pkg/logger"
)

const (
	defaultSweepSpec          = "0 6 * * *"
	defaultWindowDays         = 45
	defaultAuditSpec          = "@daily"
	defaultAuditRetentionDays = 365
)

// Sweeper runs the scheduled background work: the retrieval watchlist sweep,
// which surfaces equipment with approaching battery or permit deadlines, and
// audit log retention. It bypasses per-user permission checks; its output is
// operator logs, not API responses.
type Sweeper struct {
	db    *gorm.DB
	audit *services.AuditService
	cron  *cron.Cron
	now   func() time.Time
	log   *zap.Logger

	sweepSchedule string
	windowDays    int
	auditSchedule string
	retention     int
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

// WithNow overrides the clock used for deadline comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepSchedule overrides the cron specification for the watchlist sweep.
func WithSweepSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// WithWindowDays adjusts how far ahead the sweep looks for deadlines.
func WithWindowDays(days int) Option {
	return func(s *Sweeper) {
		if days >= 0 {
			s.windowDays = days
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained.
func WithAuditRetentionDays(days int) Option {
	return func(s *Sweeper) {
		if days > 0 {
			s.retention = days
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults. A nil audit service
// skips the retention job.
func NewSweeper(db *gorm.DB, audit *services.AuditService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		db:            db,
		audit:         audit,
		now:           time.Now,
		log:           logger.WithModule("jobs"),
		sweepSchedule: defaultSweepSpec,
		windowDays:    defaultWindowDays,
		auditSchedule: defaultAuditSpec,
		retention:     defaultAuditRetentionDays,
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper
}

// Start registers the jobs with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if s.db != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
			if err := s.sweepWatchlist(context.Background()); err != nil {
				s.log.Warn("watchlist sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.audit != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc(s.auditSchedule, func() {
			if _, err := s.audit.CleanupOlderThan(context.Background(), s.retention); err != nil {
				s.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
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

// RunOnce executes all configured jobs sequentially. Primarily used in tests
// and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.db != nil {
		if err := s.sweepWatchlist(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.audit != nil && s.retention > 0 {
		if _, err := s.audit.CleanupOlderThan(ctx, s.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// FleetDueCount aggregates the sweep result for one fleet.
type FleetDueCount struct {
	FleetID string
	Due     int64
}

// DueCounts returns, per fleet, how many open installs have a battery or
// permit deadline before now plus the sweep window.
func (s *Sweeper) DueCounts(ctx context.Context) ([]FleetDueCount, error) {
	cutoff := s.now().AddDate(0, 0, s.windowDays)

	var counts []FleetDueCount
	err := s.db.WithContext(ctx).
		Model(&models.InstallRecord{}).
		Select("equipment.fleet_id AS fleet_id, COUNT(*) AS due").
		Joins("JOIN equipment ON equipment.id = install_records.equipment_id").
		Where("install_records.status = ?", models.InstallStatusInstalled).
		Where("install_records.battery_due_at < ? OR install_records.permit_expires_at < ?", cutoff, cutoff).
		Group("equipment.fleet_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Sweeper) sweepWatchlist(ctx context.Context) error {
	counts, err := s.DueCounts(ctx)
	if err != nil {
		return err
	}

	for _, c := range counts {
		s.log.Info("equipment due for retrieval",
			zap.String("fleet_id", c.FleetID),
			zap.Int64("due", c.Due),
			zap.Int("window_days", s.windowDays),
		)
	}

	return nil
}
