package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Resolver *TokenResolver
	Issuer   string
	Clock    func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	Kind   TokenKind `json:"kind"`
	UserID string    `json:"uid"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// SignedToken is a freshly signed JWT with its validity window.
type SignedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTService signs and verifies HS256 tokens using a secret per token kind.
type JWTService struct {
	resolver *TokenResolver
	issuer   string
	now      func() time.Time
}

// NewJWTService constructs a JWTService. The resolver must hold settings for every signed kind.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("jwt: resolver must be provided")
	}
	if err := cfg.Resolver.Validate(); err != nil {
		return nil, err
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		resolver: cfg.Resolver,
		issuer:   cfg.Issuer,
		now:      now,
	}, nil
}

// Sign issues a token of kind for the user and returns the compact serialisation.
func (s *JWTService) Sign(kind TokenKind, userID, email string) (string, error) {
	signed, err := s.Issue(kind, userID, email)
	if err != nil {
		return "", err
	}
	return signed.Value, nil
}

// Issue signs a token of kind and reports when it was issued and when it expires.
func (s *JWTService) Issue(kind TokenKind, userID, email string) (SignedToken, error) {
	if strings.TrimSpace(userID) == "" {
		return SignedToken{}, errors.New("jwt: user id is required")
	}

	settings, err := s.resolver.Resolve(kind)
	if err != nil {
		return SignedToken{}, err
	}

	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(settings.TTL)

	claims := &Claims{
		Kind:   kind,
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	value, err := token.SignedString([]byte(settings.Secret))
	if err != nil {
		return SignedToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return SignedToken{Value: value, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Verify parses tokenString with the secret of kind. Any signature, format, kind or expiry problem
// yields ErrInvalidToken wrapping the underlying cause.
func (s *JWTService) Verify(kind TokenKind, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrInvalidToken.WithInternal(errors.New("jwt: token string is empty"))
	}

	settings, err := s.resolver.Resolve(kind)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parser := jwt.NewParser(opts...)

	var claims Claims
	_, err = parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(settings.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken.WithInternal(fmt.Errorf("jwt: parse token: %w", err))
	}

	if claims.Kind != kind {
		return nil, ErrInvalidToken.WithInternal(fmt.Errorf("jwt: expected %s token, got %q", kind, claims.Kind))
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken.WithInternal(errors.New("jwt: missing user id claim"))
	}

	return &claims, nil
}
