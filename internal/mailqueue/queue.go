package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// KindConfirmation is the job kind for account confirmation mails.
const KindConfirmation = "confirmation"

const maxErrorLength = 1024

// ErrNoJob is returned by Claim when nothing is ready to run.
var ErrNoJob = errors.New("mailqueue: no job available")

// Queue is a durable mail job queue stored in the mail_jobs table.
type Queue struct {
	db *gorm.DB
}

// NewQueue constructs a Queue backed by db.
func NewQueue(db *gorm.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("mailqueue: db is required")
	}
	return &Queue{db: db}, nil
}

// Enqueue stores a pending job that becomes available at availableAt.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, maxAttempts int, availableAt time.Time) (*models.MailJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mailqueue: encode payload: %w", err)
	}

	job := &models.MailJob{
		Kind:        kind,
		Payload:     datatypes.JSON(raw),
		Status:      models.MailJobPending,
		MaxAttempts: maxAttempts,
		AvailableAt: availableAt.UTC(),
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("mailqueue: enqueue: %w", err)
	}
	return job, nil
}

// Claim leases the oldest ready job until now+lease. Competing workers race on a
// compare-and-swap of the status column; the loser moves on to the next candidate.
func (q *Queue) Claim(ctx context.Context, now time.Time, lease time.Duration) (*models.MailJob, error) {
	now = now.UTC()

	for i := 0; i < 3; i++ {
		var candidate models.MailJob
		err := q.db.WithContext(ctx).
			Where("status = ? AND available_at <= ?", models.MailJobPending, now).
			Order("available_at ASC").
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoJob
		}
		if err != nil {
			return nil, fmt.Errorf("mailqueue: find candidate: %w", err)
		}

		lockedUntil := now.Add(lease)
		res := q.db.WithContext(ctx).
			Model(&models.MailJob{}).
			Where("id = ? AND status = ?", candidate.ID, models.MailJobPending).
			Updates(map[string]any{
				"status":       models.MailJobProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_until": lockedUntil,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("mailqueue: claim: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		candidate.Status = models.MailJobProcessing
		candidate.Attempts++
		candidate.LockedUntil = &lockedUntil
		return &candidate, nil
	}

	return nil, ErrNoJob
}

// Ack removes a delivered job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.db.WithContext(ctx).Delete(&models.MailJob{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("mailqueue: ack: %w", err)
	}
	return nil
}

// Retry returns a failed job to the pending state, available again at availableAt.
func (q *Queue) Retry(ctx context.Context, id string, availableAt time.Time, cause error) error {
	res := q.db.WithContext(ctx).
		Model(&models.MailJob{}).
		Where("id = ? AND status = ?", id, models.MailJobProcessing).
		Updates(map[string]any{
			"status":       models.MailJobPending,
			"available_at": availableAt.UTC(),
			"locked_until": nil,
			"last_error":   truncateError(cause),
		})
	if res.Error != nil {
		return fmt.Errorf("mailqueue: retry: %w", res.Error)
	}
	return nil
}

// Bury marks a job dead after its final failed attempt.
func (q *Queue) Bury(ctx context.Context, id string, cause error) error {
	res := q.db.WithContext(ctx).
		Model(&models.MailJob{}).
		Where("id = ? AND status = ?", id, models.MailJobProcessing).
		Updates(map[string]any{
			"status":       models.MailJobDead,
			"locked_until": nil,
			"last_error":   truncateError(cause),
		})
	if res.Error != nil {
		return fmt.Errorf("mailqueue: bury: %w", res.Error)
	}
	return nil
}

// RequeueExpired returns processing jobs whose lease ran out to the pending state.
func (q *Queue) RequeueExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	res := q.db.WithContext(ctx).
		Model(&models.MailJob{}).
		Where("status = ? AND locked_until < ?", models.MailJobProcessing, now).
		Updates(map[string]any{
			"status":       models.MailJobPending,
			"available_at": now,
			"locked_until": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mailqueue: requeue expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeDead deletes dead jobs last touched before cutoff.
func (q *Queue) PurgeDead(ctx context.Context, cutoff time.Time) (int64, error) {
	res := q.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.MailJobDead, cutoff.UTC()).
		Delete(&models.MailJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("mailqueue: purge dead: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus reports how many jobs sit in each status.
func (q *Queue) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := q.db.WithContext(ctx).
		Model(&models.MailJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("mailqueue: count by status: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.MailJob, error) {
	var job models.MailJob
	if err := q.db.WithContext(ctx).Take(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
