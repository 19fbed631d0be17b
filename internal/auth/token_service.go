package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/store"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	// DefaultVerificationTTL is the lifetime of email-verification tokens.
	DefaultVerificationTTL = 7 * 24 * time.Hour
	// DefaultVerificationLength is the number of random bytes in an email-verification token.
	DefaultVerificationLength = 48
)

// TokenServiceConfig describes tunable behaviour for the TokenService.
type TokenServiceConfig struct {
	VerificationTTL    time.Duration
	VerificationLength int
	Clock              func() time.Time
	Logger             *zap.Logger
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues, refreshes and redeems tokens on top of the codec and stores.
type TokenService struct {
	db        *gorm.DB
	codec     *JWTService
	tokens    *store.TokenStore
	users     *store.UserStore
	verifyTTL time.Duration
	verifyLen int
	now       func() time.Time
	log       *zap.Logger
}

// NewTokenService wires the token lifecycle. db is used to open the redemption transaction.
func NewTokenService(db *gorm.DB, codec *JWTService, tokens *store.TokenStore, users *store.UserStore, cfg TokenServiceConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if codec == nil {
		return nil, errors.New("token service: codec is required")
	}
	if tokens == nil || users == nil {
		return nil, errors.New("token service: stores are required")
	}

	ttl := cfg.VerificationTTL
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}

	length := cfg.VerificationLength
	if length <= 0 {
		length = DefaultVerificationLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &TokenService{
		db:        db,
		codec:     codec,
		tokens:    tokens,
		users:     users,
		verifyTTL: ttl,
		verifyLen: length,
		now:       clock,
		log:       log,
	}, nil
}

// WithTx returns a copy of the service whose writes join tx.
func (s *TokenService) WithTx(tx *gorm.DB) *TokenService {
	cpy := *s
	cpy.db = tx
	cpy.tokens = s.tokens.WithTx(tx)
	cpy.users = s.users.WithTx(tx)
	return &cpy
}

// IssueAccessAndRefresh signs an access token and a persisted refresh token for the user.
func (s *TokenService) IssueAccessAndRefresh(ctx context.Context, userID, email string) (TokenPair, error) {
	access, err := s.codec.Sign(KindAccess, userID, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: sign access token: %w", err)
	}

	refresh, err := s.codec.Issue(KindRefresh, userID, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: sign refresh token: %w", err)
	}

	record := &models.Token{
		Token:     refresh.Value,
		Type:      models.TokenTypeRefresh,
		UserID:    userID,
		IssuedAt:  refresh.IssuedAt,
		ExpiresAt: refresh.ExpiresAt,
		IsActive:  true,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return TokenPair{}, translateStoreError(err)
	}

	metrics.TokensIssued.WithLabelValues(string(KindAccess)).Inc()
	metrics.TokensIssued.WithLabelValues(string(KindRefresh)).Inc()
	s.log.Info("issued token pair", zap.String("user_id", userID))

	return TokenPair{AccessToken: access, RefreshToken: refresh.Value}, nil
}

// RefreshAccessToken mints a new access token from a valid, active refresh token. The refresh
// token itself is not rotated.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	access, err := s.refreshAccessToken(ctx, refreshToken)
	metrics.TokenRedemptions.WithLabelValues(string(KindRefresh), resultLabel(err)).Inc()
	return access, err
}

func (s *TokenService) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.codec.Verify(KindRefresh, refreshToken)
	if err != nil {
		return "", err
	}

	record, err := s.tokens.FindByToken(ctx, refreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken.WithInternal(errors.New("refresh token is not on record"))
	}
	if err != nil {
		return "", err
	}
	if record.Type != models.TokenTypeRefresh {
		return "", ErrInvalidToken.WithInternal(fmt.Errorf("token record has type %s", record.Type))
	}
	if !record.IsActive {
		return "", ErrRevokedToken
	}
	if record.IsExpired(s.now()) {
		return "", ErrExpiredToken
	}

	access, err := s.codec.Sign(KindAccess, claims.UserID, claims.Email)
	if err != nil {
		return "", fmt.Errorf("token service: sign access token: %w", err)
	}
	metrics.TokensIssued.WithLabelValues(string(KindAccess)).Inc()

	return access, nil
}

// RevokeRefreshToken deactivates a stored refresh token. Revoking twice is not an error.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	record, err := s.tokens.FindByToken(ctx, refreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken.WithInternal(errors.New("refresh token is not on record"))
	}
	if err != nil {
		return err
	}
	if record.Type != models.TokenTypeRefresh {
		return ErrInvalidToken.WithInternal(fmt.Errorf("token record has type %s", record.Type))
	}

	if err := s.tokens.Deactivate(ctx, record.ID); err != nil {
		return translateStoreError(err)
	}

	s.log.Info("revoked refresh token", zap.String("user_id", record.UserID), zap.String("token_id", record.ID))
	return nil
}

// IssueEmailVerificationToken persists a random one-time token for the user and returns it.
func (s *TokenService) IssueEmailVerificationToken(ctx context.Context, userID, email string) (string, error) {
	value, err := crypto.GenerateToken(s.verifyLen)
	if err != nil {
		return "", fmt.Errorf("token service: generate verification token: %w", err)
	}

	now := s.now()
	record := &models.Token{
		Token:     value,
		Type:      models.TokenTypeEmailVerification,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.verifyTTL),
		IsActive:  true,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", translateStoreError(err)
	}

	metrics.TokensIssued.WithLabelValues(string(KindEmailVerification)).Inc()
	s.log.Info("issued email verification token", zap.String("user_id", userID), zap.String("email", email))

	return value, nil
}

// RedeemEmailVerificationToken consumes token and marks its owner verified. The token flip and
// the user update commit together or not at all.
func (s *TokenService) RedeemEmailVerificationToken(ctx context.Context, token string) error {
	err := s.redeemEmailVerificationToken(ctx, token)
	metrics.TokenRedemptions.WithLabelValues(string(KindEmailVerification), resultLabel(err)).Inc()
	return err
}

func (s *TokenService) redeemEmailVerificationToken(ctx context.Context, token string) error {
	record, err := s.tokens.FindByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken.WithInternal(errors.New("verification token is not on record"))
	}
	if err != nil {
		return err
	}
	if record.Type != models.TokenTypeEmailVerification {
		return ErrInvalidToken.WithInternal(fmt.Errorf("token record has type %s", record.Type))
	}

	now := s.now()
	if record.IsExpired(now) {
		return ErrExpiredToken
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken.WithInternal(errors.New("verification token owner no longer exists"))
	}
	if err != nil {
		return err
	}

	if !record.IsActive {
		if user.IsVerified() {
			return ErrAlreadyVerified
		}
		return ErrRevokedToken
	}
	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := s.tokens.WithTx(tx).DeactivateIfActive(ctx, record.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrRevokedToken
		}

		updated, err := s.users.WithTx(tx).UpdateVerifiedAt(ctx, user.ID, now)
		if err != nil {
			return err
		}
		if !updated {
			return ErrAlreadyVerified
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("email verified", zap.String("user_id", user.ID), zap.String("token_id", record.ID))
	return nil
}

func translateStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrConflict.WithInternal(err)
	case errors.Is(err, store.ErrNotFound):
		return ErrInvalidToken.WithInternal(err)
	default:
		return err
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}
