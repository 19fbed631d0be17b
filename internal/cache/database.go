package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/models"
)

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

func (s *DatabaseStore) clock() time.Time {
	return s.now().UTC()
}

// IncrementWithTTL atomically increments a counter for the supplied key. The first hit inserts the
// row and later hits update it in the same statement, so concurrent callers never lose a count.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()
	expiry := now.Add(window)

	// hits is assigned before expires_at: MySQL evaluates the update list left to right.
	upsert := clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: []clause.Assignment{
			{
				Column: clause.Column{Name: "hits"},
				Value:  gorm.Expr("CASE WHEN cache_entries.expires_at < ? THEN 1 ELSE cache_entries.hits + 1 END", now),
			},
			{
				Column: clause.Column{Name: "expires_at"},
				Value:  gorm.Expr("CASE WHEN cache_entries.expires_at < ? THEN ? ELSE cache_entries.expires_at END", now, expiry),
			},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
		},
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsert).Create(&models.CacheEntry{
			Key:       key,
			Hits:      1,
			ExpiresAt: expiry,
		}).Error; err != nil {
			return err
		}
		return tx.Where(&models.CacheEntry{Key: key}).Take(&entry).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("cache: increment %s: %w", key, err)
	}

	return entry.Hits, entry.ExpiresAt.Sub(now), nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *DatabaseStore) Close() error {
	return nil
}
