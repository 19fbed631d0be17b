package models

import (
	"time"
)

// CacheEntry is a windowed hit counter backing the database cache store.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Hits      int64     `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
