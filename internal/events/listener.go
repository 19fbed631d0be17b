package events

import (
	"context"

	"go.uber.org/zap"
)

// ConfirmationEnqueuer queues a confirmation mail for delivery.
type ConfirmationEnqueuer interface {
	EnqueueConfirmation(ctx context.Context, email, token string)
}

// NewConfirmationListener returns a Handler that turns UserRegistered into a confirmation mail job.
func NewConfirmationListener(enqueuer ConfirmationEnqueuer, log *zap.Logger) Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context, evt Event) error {
		registered, ok := evt.(UserRegistered)
		if !ok {
			return nil
		}

		log.Debug("user registered", zap.String("user_id", registered.UserID), zap.String("email", registered.Email))
		enqueuer.EnqueueConfirmation(ctx, registered.Email, registered.ConfirmationToken)
		return nil
	}
}
