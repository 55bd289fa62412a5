package auth

import (
	"context"
	"errors"
	"time"

	"github.com/driftwire/driftwire/config"
	lru "github.com/hashicorp/golang-lru"
)

const tokenCacheSize = 1024

var (
	// ErrNoCredential is returned when no token was supplied at all.
	ErrNoCredential = errors.New("no credential supplied")
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed tokens or bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the identity extracted from a verified credential.
type Claims struct {
	UserId string
	Email  string
	Role   string
}

type cacheEntry struct {
	claims    *Claims
	expiresAt time.Time
}

// Authenticator verifies bearer credentials against the configured shared
// secret, optionally falling back to a configured OIDC provider. Verified
// tokens are cached so reconnects do not re-parse the same credential.
type Authenticator struct {
	cfg   *config.Config
	cache *lru.Cache
}

func NewAuthenticator(cfg *config.Config) (*Authenticator, error) {
	cache, err := lru.New(tokenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Authenticator{cfg: cfg, cache: cache}, nil
}

// Verify checks the given bearer token. It resolves within the deadline of ctx
// or fails; callers bound it with the configured auth timeout.
func (a *Authenticator) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoCredential
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := a.cache.Get(token); ok {
		entry := v.(cacheEntry)
		if entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt) {
			return entry.claims, nil
		}
		a.cache.Remove(token)
		return nil, ErrTokenExpired
	}
	claims, expiresAt, err := a.verifyHMAC(token)
	if err != nil {
		return nil, err
	}
	a.cache.Add(token, cacheEntry{claims: claims, expiresAt: expiresAt})
	return claims, nil
}
