// Package erp implements the HTTP gateway to the external ERP: token
// lifecycle, paginated reads, pushes with idempotency keys, and mapping of
// wire records onto the domain's record types.
package erp

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/domain/shared"
)

// refreshLeeway is how long before expiry a cached token is refreshed, so a
// token never expires mid-request.
const refreshLeeway = 60 * time.Second

// Credentials is the ERP client credential pair
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// RefreshFunc acquires a fresh access token from the remote
type RefreshFunc func(ctx context.Context, creds Credentials) (token string, expiresAt time.Time, err error)

// TokenCache owns the adapter's access token. It refreshes proactively
// before expiry; a refresh failure surfaces as erp.ErrAuth, which callers
// treat as fatal until an operator fixes the credentials.
type TokenCache struct {
	mu        stdsync.Mutex
	creds     Credentials
	refresh   RefreshFunc
	clock     shared.Clock
	token     string
	expiresAt time.Time
}

// NewTokenCache creates a token cache. A nil clock uses the system clock.
func NewTokenCache(creds Credentials, refresh RefreshFunc, clock shared.Clock) *TokenCache {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &TokenCache{
		creds:   creds,
		refresh: refresh,
		clock:   clock,
	}
}

// Token returns a valid access token, refreshing when the cached one is
// absent or within the leeway of expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock().Before(c.expiresAt.Add(-refreshLeeway)) {
		return c.token, nil
	}

	token, expiresAt, err := c.refresh(ctx, c.creds)
	if err != nil {
		c.token = ""
		return "", fmt.Errorf("%w: token refresh: %v", erp.ErrAuth, err)
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token, forcing a refresh on the next call.
// Used after the remote rejects a token the cache considered valid.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
