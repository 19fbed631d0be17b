package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/mail"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	defaultWorkers      = 2
	defaultPollInterval = time.Second
	defaultLease        = 2 * time.Minute

	confirmationTemplate = "confirmation"
	confirmationSubject  = "Confirm your email"
)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	Lease        time.Duration
	AppURL       string
	// LinkExpiry is shown to the recipient; it does not affect token validity.
	LinkExpiry string
	Retry      RetryPolicy
	Clock      func() time.Time
}

// Pool drains the queue into the mail transport with a fixed number of goroutines.
type Pool struct {
	queue  *Queue
	sender mail.TemplateSender
	cfg    WorkerConfig
	now    func() time.Time
	log    *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool constructs a worker pool. Start must be called to begin processing.
func NewPool(queue *Queue, sender mail.TemplateSender, cfg WorkerConfig, log *zap.Logger) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("mailqueue: queue is required")
	}
	if sender == nil {
		return nil, errors.New("mailqueue: sender is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.LinkExpiry == "" {
		cfg.LinkExpiry = "7 days"
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	cfg.Retry = cfg.Retry.normalized()

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pool{
		queue:  queue,
		sender: sender,
		cfg:    cfg,
		now:    now,
		log:    log,
	}, nil
}

// Start launches the workers. Calling Start on a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.log.Info("mail workers started", zap.Int("workers", p.cfg.Workers))
}

// Stop cancels the workers and waits for in-flight jobs to finish or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("mail workers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mailqueue: stop workers: %w", ctx.Err())
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything that is ready before waiting for the next tick.
		for {
			processed, err := p.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.Error("mail worker poll failed", zap.Int("worker", id), zap.Error(err))
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and handles one job. It reports whether a job was found.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx, p.now(), p.cfg.Lease)
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.handle(ctx, job)
	return true, nil
}

func (p *Pool) handle(ctx context.Context, job *models.MailJob) {
	log := p.log.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempt", job.Attempts))
	log.Info("mail job started")

	// Delivery runs to completion even when shutdown cancels the poll context.
	sendCtx := context.WithoutCancel(ctx)

	sendErr := p.deliver(sendCtx, job)
	if sendErr == nil {
		if err := p.queue.Ack(sendCtx, job.ID); err != nil {
			log.Error("mail job ack failed", zap.Error(err))
			return
		}
		metrics.MailJobs.WithLabelValues("sent").Inc()
		log.Info("mail job completed")
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.Retry.MaxAttempts
	}

	if job.Attempts >= maxAttempts {
		if err := p.queue.Bury(sendCtx, job.ID, sendErr); err != nil {
			log.Error("mail job bury failed", zap.Error(err))
		}
		metrics.MailJobs.WithLabelValues("dead").Inc()
		log.Error("mail job failed permanently", zap.Error(sendErr))
		return
	}

	delay := p.cfg.Retry.Backoff(job.Attempts)
	if err := p.queue.Retry(sendCtx, job.ID, p.now().Add(delay), sendErr); err != nil {
		log.Error("mail job reschedule failed", zap.Error(err))
	}
	metrics.MailJobs.WithLabelValues("retry").Inc()
	log.Warn("mail job failed, will retry", zap.Duration("retry_in", delay), zap.Error(sendErr))
}

func (p *Pool) deliver(ctx context.Context, job *models.MailJob) error {
	switch job.Kind {
	case KindConfirmation:
		var payload models.ConfirmationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		data := map[string]string{
			"Link":      ConfirmationLink(p.cfg.AppURL, payload.Token),
			"ExpiresIn": p.cfg.LinkExpiry,
		}
		return p.sender.SendTemplatedMail(ctx, confirmationTemplate, data, confirmationSubject, payload.Email)
	default:
		return fmt.Errorf("unknown mail job kind %q", job.Kind)
	}
}

// ConfirmationLink builds the link a recipient follows to confirm their address.
func ConfirmationLink(appURL, token string) string {
	return strings.TrimRight(appURL, "/") + "/auth/confirm-mail/" + token
}
