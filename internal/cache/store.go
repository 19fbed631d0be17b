package cache

import (
	"context"
	"time"
)

// Store is the shared counter backend behind rate limiting.
type Store interface {
	// IncrementWithTTL bumps the counter for key and returns the new count with the time left in
	// its window. The window starts at the first hit and is not extended by later ones.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}
