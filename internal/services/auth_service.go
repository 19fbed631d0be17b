package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/events"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/store"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// PasswordHasher hashes and compares account passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hash string) bool
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Profile is the identity carried by a verified access token.
type Profile struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// AuthService implements registration, login and token exchange for local accounts.
type AuthService struct {
	db        *gorm.DB
	users     *store.UserStore
	tokens    *auth.TokenService
	hasher    PasswordHasher
	publisher events.Publisher
	log       *zap.Logger
}

// NewAuthService constructs an AuthService. db is used to run registration in a transaction.
func NewAuthService(db *gorm.DB, users *store.UserStore, tokens *auth.TokenService, hasher PasswordHasher, publisher events.Publisher, log *zap.Logger) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if users == nil || tokens == nil {
		return nil, errors.New("auth service: user store and token service are required")
	}
	if hasher == nil {
		return nil, errors.New("auth service: password hasher is required")
	}
	if publisher == nil {
		return nil, errors.New("auth service: event publisher is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		db:        db,
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		publisher: publisher,
		log:       log,
	}, nil
}

// Register creates an unverified account and publishes UserRegistered with its confirmation token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) error {
	ctx = ensureContext(ctx)
	email := models.NormalizeEmail(input.Email)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("auth service: check email: %w", err)
	}
	if exists {
		return ErrDuplicateEmail
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	user := &models.User{
		Name:     strings.TrimSpace(input.Name),
		Email:    email,
		Password: hashed,
	}

	var token string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateEmail.WithInternal(err)
			}
			return err
		}

		issued, err := s.tokens.WithTx(tx).IssueEmailVerificationToken(ctx, user.ID, user.Email)
		if err != nil {
			return err
		}
		token = issued
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("email", user.Email))

	evt := events.UserRegistered{UserID: user.ID, Email: user.Email, ConfirmationToken: token}
	if err := s.publisher.Publish(evt); err != nil {
		s.log.Warn("publish user registered", zap.String("user_id", user.ID), zap.Error(err))
	}

	return nil
}

// Login checks credentials and issues a token pair for a verified account.
func (s *AuthService) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	pair, err := s.login(ensureContext(ctx), email, password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return pair, nil
}

func (s *AuthService) login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return auth.TokenPair{}, ErrEmailNotFound
	}
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("auth service: load user: %w", err)
	}

	if !s.hasher.Compare(password, user.Password) {
		return auth.TokenPair{}, ErrInvalidCredentials
	}

	if !user.IsVerified() {
		return auth.TokenPair{}, ErrAccountPending
	}

	pair, err := s.tokens.IssueAccessAndRefresh(ctx, user.ID, user.Email)
	if err != nil {
		return auth.TokenPair{}, err
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID))
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token. Rejected tokens are reported as
// ErrInvalidRefreshToken with the cause kept for logs; storage failures pass through unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	access, err := s.tokens.RefreshAccessToken(ensureContext(ctx), refreshToken)
	if err != nil {
		if !isTokenRejection(err) {
			s.log.Error("refresh failed", zap.Error(err))
			return "", fmt.Errorf("auth service: refresh: %w", err)
		}
		s.log.Info("refresh rejected", zap.Error(err))
		return "", ErrInvalidRefreshToken.WithInternal(err)
	}
	return access, nil
}

// ConfirmEmail redeems an email-verification token.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	if err := s.tokens.RedeemEmailVerificationToken(ensureContext(ctx), token); err != nil {
		s.log.Info("email confirmation rejected", zap.Error(err))
		return err
	}
	return nil
}

// Logout revokes a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.RevokeRefreshToken(ensureContext(ctx), refreshToken); err != nil {
		if !isTokenRejection(err) {
			return fmt.Errorf("auth service: logout: %w", err)
		}
		return ErrInvalidRefreshToken.WithInternal(err)
	}
	return nil
}

func isTokenRejection(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrRevokedToken) ||
		errors.Is(err, auth.ErrExpiredToken)
}

// Profile returns the identity carried by verified access token claims.
func (s *AuthService) Profile(claims *auth.Claims) (Profile, error) {
	if claims == nil || claims.UserID == "" {
		return Profile{}, auth.ErrInvalidToken
	}
	return Profile{UserID: claims.UserID, Email: claims.Email}, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
