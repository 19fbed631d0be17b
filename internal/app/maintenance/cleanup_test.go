package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	testutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/mailqueue"
	"github.com/charlesng35/authcore/internal/models"
)

func TestCleanupCacheEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.CacheEntry{Key: "expired", Hits: 1, ExpiresAt: now.Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "live", Hits: 1, ExpiresAt: now.Add(time.Minute)}).Error)

	removed, err := CleanupCacheEntries(context.Background(), db, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"live"}, keys)

	_, err = CleanupCacheEntries(context.Background(), nil, now)
	require.Error(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := mailqueue.NewQueue(db)
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	// A job whose worker lease ran out.
	stuck, err := queue.Enqueue(ctx, mailqueue.KindConfirmation, models.ConfirmationPayload{Email: "a@x.com", Token: "t1"}, 5, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	claimed, err := queue.Claim(ctx, clock.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, err)
	require.Equal(t, stuck.ID, claimed.ID)

	// A dead job past retention and a dead job within it.
	oldDead, err := queue.Enqueue(ctx, mailqueue.KindConfirmation, models.ConfirmationPayload{Email: "b@x.com", Token: "t2"}, 1, clock.Now())
	require.NoError(t, err)
	require.NoError(t, queue.Bury(ctx, oldDead.ID, errors.New("smtp down")))
	require.NoError(t, db.Model(&models.MailJob{}).Where("id = ?", oldDead.ID).
		UpdateColumn("updated_at", clock.Now().AddDate(0, 0, -10)).Error)

	recentDead, err := queue.Enqueue(ctx, mailqueue.KindConfirmation, models.ConfirmationPayload{Email: "c@x.com", Token: "t3"}, 1, clock.Now())
	require.NoError(t, err)
	require.NoError(t, queue.Bury(ctx, recentDead.ID, errors.New("smtp down")))
	require.NoError(t, db.Model(&models.MailJob{}).Where("id = ?", recentDead.ID).
		UpdateColumn("updated_at", clock.Now().Add(-time.Hour)).Error)

	require.NoError(t, db.Create(&models.CacheEntry{Key: "rate:1", Hits: 3, ExpiresAt: clock.Now().Add(-time.Second)}).Error)

	c := NewCleaner(db, queue,
		WithNow(clock.Now),
		WithDeadRetention(7*24*time.Hour),
		WithLogger(zaptest.NewLogger(t)),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(ctx))

	requeued, err := queue.Get(ctx, stuck.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobPending, requeued.Status)

	_, err = queue.Get(ctx, oldDead.ID)
	require.Error(t, err)

	kept, err := queue.Get(ctx, recentDead.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobDead, kept.Status)

	var cacheCount int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheCount).Error)
	require.Zero(t, cacheCount)
}

type failingQueue struct{}

func (failingQueue) RequeueExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("requeue failed")
}

func (failingQueue) PurgeDead(context.Context, time.Time) (int64, error) {
	return 0, errors.New("purge failed")
}

func TestCleanerRunOnceCombinesErrors(t *testing.T) {
	c := NewCleaner(nil, failingQueue{})

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "requeue failed")
	require.Contains(t, err.Error(), "purge failed")
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := mailqueue.NewQueue(db)
	require.NoError(t, err)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(db, queue, WithCron(scheduler))

	require.NoError(t, c.Start())
	<-c.Stop().Done()

	require.Len(t, scheduler.Entries(), 3)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(nil, failingQueue{}, WithRequeueSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerDisabledWithoutTargets(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
