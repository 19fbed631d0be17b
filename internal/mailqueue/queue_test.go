package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	queue, err := NewQueue(db)
	require.NoError(t, err)
	return queue
}

func TestEnqueueStoresPendingJob(t *testing.T) {
	queue := setupQueue(t)
	now := time.Now().UTC()

	job, err := queue.Enqueue(context.Background(), KindConfirmation, models.ConfirmationPayload{Email: "a@x.com", Token: "tok"}, 5, now)
	require.NoError(t, err)

	stored, err := queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobPending, stored.Status)
	require.Equal(t, 5, stored.MaxAttempts)
	require.Zero(t, stored.Attempts)

	var payload models.ConfirmationPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	require.Equal(t, models.ConfirmationPayload{Email: "a@x.com", Token: "tok"}, payload)
}

func TestClaimRespectsAvailabilityAndLeases(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := queue.Claim(ctx, now, time.Minute)
	require.ErrorIs(t, err, ErrNoJob)

	later, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 5, now.Add(time.Hour))
	require.NoError(t, err)
	ready, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 5, now.Add(-time.Second))
	require.NoError(t, err)

	claimed, err := queue.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, ready.ID, claimed.ID)
	require.Equal(t, 1, claimed.Attempts)
	require.Equal(t, models.MailJobProcessing, claimed.Status)

	_, err = queue.Claim(ctx, now, time.Minute)
	require.ErrorIs(t, err, ErrNoJob, "claimed and future jobs are not handed out")

	claimed, err = queue.Claim(ctx, now.Add(2*time.Hour), time.Minute)
	require.NoError(t, err)
	require.Equal(t, later.ID, claimed.ID)
}

func TestRetryBuryAndAck(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 2, now)
	require.NoError(t, err)

	_, err = queue.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Retry(ctx, job.ID, now.Add(time.Minute), errors.New("smtp down")))

	stored, err := queue.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobPending, stored.Status)
	require.Equal(t, "smtp down", stored.LastError)
	require.Nil(t, stored.LockedUntil)

	_, err = queue.Claim(ctx, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Bury(ctx, job.ID, errors.New("still down")))

	stored, err = queue.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobDead, stored.Status)
	require.Equal(t, 2, stored.Attempts)

	other, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 2, now)
	require.NoError(t, err)
	require.NoError(t, queue.Ack(ctx, other.ID))
	_, err = queue.Get(ctx, other.ID)
	require.Error(t, err)
}

func TestRequeueExpiredLeases(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 5, now)
	require.NoError(t, err)
	_, err = queue.Claim(ctx, now, time.Minute)
	require.NoError(t, err)

	count, err := queue.RequeueExpired(ctx, now.Add(30*time.Second))
	require.NoError(t, err)
	require.Zero(t, count, "lease still valid")

	count, err = queue.RequeueExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	stored, err := queue.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.MailJobPending, stored.Status)
	require.Equal(t, 1, stored.Attempts, "attempt counter survives the requeue")
}

func TestPurgeDead(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{}, 1, now)
	require.NoError(t, err)
	_, err = queue.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, queue.Bury(ctx, job.ID, errors.New("boom")))

	count, err := queue.PurgeDead(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = queue.PurgeDead(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestCountByStatus(t *testing.T) {
	queue := setupQueue(t)
	ctx := context.Background()
	now := time.Now().UTC()

	counts, err := queue.CountByStatus(ctx)
	require.NoError(t, err)
	require.Empty(t, counts)

	for i := 0; i < 2; i++ {
		_, err := queue.Enqueue(ctx, KindConfirmation, models.ConfirmationPayload{Email: "a@x.com", Token: "tok"}, 5, now)
		require.NoError(t, err)
	}
	_, err = queue.Claim(ctx, now, time.Minute)
	require.NoError(t, err)

	counts, err = queue.CountByStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts[string(models.MailJobPending)])
	require.EqualValues(t, 1, counts[string(models.MailJobProcessing)])
	require.Zero(t, counts[string(models.MailJobDead)])
}
