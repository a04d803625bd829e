package shared

import (
	"context"
	"time"
)

// IdempotencyStore records idempotency keys that the external system has
// already accepted, so a retried push does not create a duplicate remote
// record.
type IdempotencyStore interface {
	// MarkProcessed marks a key as accepted with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been accepted.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for accepted keys. After this duration the
	// same key would be pushed again; keep it well above the job queue's
	// maximum retry horizon.
	TTL time.Duration

	// Enabled determines whether the remote-dedup check runs before a push
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     7 * 24 * time.Hour,
		Enabled: true,
	}
}
