// Package auth exchanges service-account credentials for platform bearer
// tokens and caches the result process-wide.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"armor-gateway/internal/domain/entity"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/sync/singleflight"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// Tokens are minted for one hour; a cached token is reused only while
	// more than expiryBuffer of validity remains.
	tokenLifetime = time.Hour
	expiryBuffer  = 5 * time.Minute
)

type fetchFunc func(ctx context.Context) (entity.Credential, error)

// TokenCache holds the single process-wide credential slot. Concurrent
// refreshes collapse into one in-flight exchange via singleflight.
type TokenCache struct {
	fetch fetchFunc
	now   func() time.Time

	mu    sync.RWMutex
	cred  entity.Credential
	group singleflight.Group
}

// NewTokenCache builds a cache over the service-account JWT grant. The
// private key may arrive with literal \n sequences from the environment.
func NewTokenCache(email, privateKey string) *TokenCache {
	cfg := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
		Scopes:     []string{cloudPlatformScope},
		TokenURL:   google.JWTTokenURL,
	}
	return &TokenCache{
		fetch: func(ctx context.Context) (entity.Credential, error) {
			tok, err := cfg.TokenSource(ctx).Token()
			if err != nil {
				return entity.Credential{}, fmt.Errorf("%w: %v", entity.ErrAuth, err)
			}
			exp := tok.Expiry
			if exp.IsZero() {
				exp = time.Now().Add(tokenLifetime)
			}
			return entity.Credential{Token: tok.AccessToken, ExpiresAt: exp}, nil
		},
		now: time.Now,
	}
}

// Token returns the cached credential while it has more than five minutes
// of validity left, otherwise performs one exchange and caches the result.
// No stale token is ever returned past its buffer window.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if cred, ok := c.cached(); ok {
		return cred.Token, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		// A concurrent caller may have refreshed while we waited.
		if cred, ok := c.cached(); ok {
			return cred, nil
		}
		fresh, err := c.fetch(ctx)
		if err != nil {
			return entity.Credential{}, err
		}
		c.mu.Lock()
		c.cred = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(entity.Credential).Token, nil
}

func (c *TokenCache) cached() (entity.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred.Token == "" {
		return entity.Credential{}, false
	}
	if !c.now().Before(c.cred.ExpiresAt.Add(-expiryBuffer)) {
		return entity.Credential{}, false
	}
	return c.cred, true
}
