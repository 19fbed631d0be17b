package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
)

// TokenStore persists refresh and email-verification tokens.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore constructs a TokenStore backed by db.
func NewTokenStore(db *gorm.DB) (*TokenStore, error) {
	if db == nil {
		return nil, errors.New("token store: db is required")
	}
	return &TokenStore{db: db}, nil
}

// WithTx returns a copy of the store bound to tx.
func (s *TokenStore) WithTx(tx *gorm.DB) *TokenStore {
	return &TokenStore{db: tx}
}

// Create inserts record. A duplicate token value yields ErrConflict.
func (s *TokenStore) Create(ctx context.Context, record *models.Token) error {
	// Timestamps are stored in UTC so range filters compare consistently on every dialect.
	record.IssuedAt = record.IssuedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("token store: create: %w", err)
	}
	return nil
}

// FindByToken returns the record regardless of its state.
func (s *TokenStore) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	var record models.Token
	err := s.db.WithContext(ctx).Take(&record, "token_hash = ?", crypto.DigestToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token store: find: %w", err)
	}
	return &record, nil
}

// FindActiveByTypeAndToken returns the record only if it is active and unexpired at now.
func (s *TokenStore) FindActiveByTypeAndToken(ctx context.Context, kind models.TokenType, token string, now time.Time) (*models.Token, error) {
	var record models.Token
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND type = ? AND is_active = ? AND expires_at > ?", crypto.DigestToken(token), kind, true, now.UTC()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token store: find active: %w", err)
	}
	return &record, nil
}

// Deactivate marks the record inactive. Deactivating an inactive record is a no-op; an unknown id
// returns ErrNotFound.
func (s *TokenStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Token{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("token store: deactivate: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Token{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("token store: deactivate: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateIfActive flips is_active from true to false and reports whether this call did it.
func (s *TokenStore) DeactivateIfActive(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Token{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, fmt.Errorf("token store: deactivate if active: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
