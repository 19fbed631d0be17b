package app

import (
	"github.com/charlesng35/authcore/internal/mailqueue"
)

// RetryPolicy converts the queue settings into a retry policy.
func (c MailConfig) RetryPolicy() mailqueue.RetryPolicy {
	return mailqueue.RetryPolicy{
		MaxAttempts: c.Queue.MaxAttempts,
		BaseDelay:   c.Queue.BaseDelay,
		MaxDelay:    c.Queue.MaxDelay,
	}
}

// WorkerConfig converts the queue settings into worker pool parameters. appURL is the base of
// confirmation links and linkExpiry the lifetime shown to recipients.
func (c MailConfig) WorkerConfig(appURL, linkExpiry string) mailqueue.WorkerConfig {
	return mailqueue.WorkerConfig{
		Workers:      c.Queue.Workers,
		PollInterval: c.Queue.PollInterval,
		Lease:        c.Queue.Lease,
		AppURL:       appURL,
		LinkExpiry:   linkExpiry,
		Retry:        c.RetryPolicy(),
	}
}
