package mailqueue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/models"
)

// Dispatcher turns domain requests into queued mail jobs. It never talks to the mail server.
type Dispatcher struct {
	queue  *Queue
	policy RetryPolicy
	now    func() time.Time
	log    *zap.Logger
}

// NewDispatcher constructs a Dispatcher writing to queue.
func NewDispatcher(queue *Queue, policy RetryPolicy, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		policy: policy.normalized(),
		now:    time.Now,
		log:    log,
	}
}

// EnqueueConfirmation queues the confirmation mail for email. Failures are logged and swallowed
// because the registration they belong to has already succeeded.
func (d *Dispatcher) EnqueueConfirmation(ctx context.Context, email, token string) {
	payload := models.ConfirmationPayload{Email: email, Token: token}

	job, err := d.queue.Enqueue(ctx, KindConfirmation, payload, d.policy.MaxAttempts, d.now())
	if err != nil {
		d.log.Error("enqueue confirmation mail", zap.String("email", email), zap.Error(err))
		return
	}

	d.log.Info("confirmation mail queued", zap.String("job_id", job.ID), zap.String("email", email))
}
