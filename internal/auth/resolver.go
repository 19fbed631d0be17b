package auth

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// TokenKind identifies the purpose of a token.
type TokenKind string

const (
	KindAccess            TokenKind = "ACCESS"
	KindRefresh           TokenKind = "REFRESH"
	KindEmailVerification TokenKind = "EMAIL_VERIFICATION"
)

// SignedKinds lists the kinds issued as signed JWTs.
var SignedKinds = []TokenKind{KindAccess, KindRefresh}

// TokenSettings is the signing secret and lifetime for one kind.
type TokenSettings struct {
	Secret string
	TTL    time.Duration
}

// ResolverConfig carries the per-kind settings loaded from configuration.
type ResolverConfig struct {
	Access  TokenSettings
	Refresh TokenSettings
}

// TokenResolver maps a token kind to its secret and lifetime.
type TokenResolver struct {
	settings map[TokenKind]TokenSettings
}

// NewTokenResolver builds a resolver. Call Validate to fail fast on missing settings.
func NewTokenResolver(cfg ResolverConfig) *TokenResolver {
	return &TokenResolver{
		settings: map[TokenKind]TokenSettings{
			KindAccess:  cfg.Access,
			KindRefresh: cfg.Refresh,
		},
	}
}

// Resolve returns the settings for kind or ErrConfiguration when the secret or TTL is missing.
func (r *TokenResolver) Resolve(kind TokenKind) (TokenSettings, error) {
	settings, ok := r.settings[kind]
	if !ok {
		return TokenSettings{}, ErrConfiguration.WithInternal(fmt.Errorf("token kind %q is not signed", kind))
	}
	if strings.TrimSpace(settings.Secret) == "" {
		return TokenSettings{}, ErrConfiguration.WithInternal(fmt.Errorf("%s_TOKEN_SECRET is not set", kind))
	}
	if settings.TTL <= 0 {
		return TokenSettings{}, ErrConfiguration.WithInternal(fmt.Errorf("%s_TOKEN_EXPIRATION is not set", kind))
	}
	return settings, nil
}

// Validate resolves every signed kind and reports all missing settings at once.
func (r *TokenResolver) Validate() error {
	var errs error
	for _, kind := range SignedKinds {
		if _, err := r.Resolve(kind); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
