package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

const (
	defaultDeadRetention = 7 * 24 * time.Hour
	defaultRequeueSpec   = "@every 1m"
	defaultPurgeSpec     = "@daily"
	defaultCacheSpec     = "@hourly"
)

// MailQueue is the subset of the mail queue the cleaner maintains.
type MailQueue interface {
	RequeueExpired(ctx context.Context, now time.Time) (int64, error)
	PurgeDead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: recovering mail jobs whose worker lease ran out,
// purging dead mail jobs, and removing expired cache entries.
type Cleaner struct {
	db        *gorm.DB
	queue     MailQueue
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention time.Duration

	requeueSchedule string
	purgeSchedule   string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithLogger sets the logger used for job failures.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// WithDeadRetention adjusts how long dead mail jobs are kept for inspection.
func WithDeadRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithRequeueSchedule overrides the cron specification for lease recovery.
func WithRequeueSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.requeueSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for dead job purging.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil queue skips the mail jobs and a nil db skips cache cleanup.
func NewCleaner(db *gorm.DB, queue MailQueue, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		queue:           queue,
		now:             time.Now,
		retention:       defaultDeadRetention,
		requeueSchedule: defaultRequeueSpec,
		purgeSchedule:   defaultPurgeSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.queue != nil || cleaner.db != nil

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it if anything is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.queue != nil {
		if _, err := c.cron.AddFunc(c.requeueSchedule, func() {
			if _, err := c.requeueExpired(context.Background()); err != nil {
				c.log.Warn("mail lease recovery failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}

		if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
			if _, err := c.purgeDead(context.Background()); err != nil {
				c.log.Warn("dead mail purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := CleanupCacheEntries(context.Background(), c.db, c.now()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.queue != nil {
		if _, err := c.requeueExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
		if _, err := c.purgeDead(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupCacheEntries(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) requeueExpired(ctx context.Context) (int64, error) {
	count, err := c.queue.RequeueExpired(ctx, c.now())
	if err == nil && count > 0 {
		c.log.Info("requeued mail jobs with expired leases", zap.Int64("count", count))
	}
	return count, err
}

func (c *Cleaner) purgeDead(ctx context.Context) (int64, error) {
	count, err := c.queue.PurgeDead(ctx, c.now().Add(-c.retention))
	if err == nil && count > 0 {
		c.log.Info("purged dead mail jobs", zap.Int64("count", count))
	}
	return count, err
}

// CleanupCacheEntries removes expired rows from the database cache store.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at < ? AND expires_at > ?", now.UTC(), time.Time{}).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}
