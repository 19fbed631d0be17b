package app

import (
	"strconv"
	"time"

	"github.com/charlesng35/authcore/internal/auth"
)

const defaultBcryptCost = 10

// ResolverConfig converts AuthConfig into the per-kind secrets and lifetimes used by the codec.
func (c AuthConfig) ResolverConfig() auth.ResolverConfig {
	return auth.ResolverConfig{
		Access:  auth.TokenSettings{Secret: c.AccessToken.Secret, TTL: c.AccessToken.TTL},
		Refresh: auth.TokenSettings{Secret: c.RefreshToken.Secret, TTL: c.RefreshToken.TTL},
	}
}

// JWTServiceConfig builds the codec configuration on top of resolver.
func (c AuthConfig) JWTServiceConfig(resolver *auth.TokenResolver) auth.JWTConfig {
	return auth.JWTConfig{
		Resolver: resolver,
		Issuer:   c.Issuer,
	}
}

// TokenServiceConfig converts AuthConfig into TokenService parameters.
func (c AuthConfig) TokenServiceConfig() auth.TokenServiceConfig {
	ttl := c.Verification.TTL
	if ttl <= 0 {
		ttl = auth.DefaultVerificationTTL
	}

	length := c.Verification.Length
	if length <= 0 {
		length = auth.DefaultVerificationLength
	}

	return auth.TokenServiceConfig{
		VerificationTTL:    ttl,
		VerificationLength: length,
	}
}

// BcryptCost returns the configured hashing cost or the default.
func (c AuthConfig) BcryptCost() int {
	if c.Password.BcryptCost <= 0 {
		return defaultBcryptCost
	}
	return c.Password.BcryptCost
}

// VerificationExpiryText renders the verification lifetime for humans, e.g. "7 days".
func (c AuthConfig) VerificationExpiryText() string {
	ttl := c.TokenServiceConfig().VerificationTTL
	day := 24 * time.Hour
	if ttl%day == 0 {
		days := int(ttl / day)
		if days == 1 {
			return "1 day"
		}
		return strconv.Itoa(days) + " days"
	}
	return ttl.String()
}
