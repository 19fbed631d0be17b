package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/authcore/internal/monitoring"
)

// MailBacklog reports queued mail job counts by status.
type MailBacklog interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// MailQueue flags the pipeline as degraded when dead jobs pile up or pending jobs exceed maxPending.
// Undelivered mail never takes the API down.
func MailQueue(queue MailBacklog, maxPending int64) monitoring.Check {
	return monitoring.NewCheck("mail_queue", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		counts, err := queue.CountByStatus(ctx)
		if err != nil {
			return monitoring.ResultFromError("mail_queue", err, time.Since(start))
		}

		pending, dead := counts["pending"], counts["dead"]
		details := fmt.Sprintf("pending=%d processing=%d dead=%d", pending, counts["processing"], dead)

		status := monitoring.StatusUp
		if dead > 0 || (maxPending > 0 && pending > maxPending) {
			status = monitoring.StatusDegraded
		}
		return monitoring.ProbeResult{Status: status, Details: details, Duration: time.Since(start)}
	})
}
