package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coinvoice/internal/shared/id"
)

const (
	// invoiceLockPrefix is the prefix for all invoice evaluation locks
	invoiceLockPrefix = "invoice_lock:"
	// DefaultLockTTL bounds how long a crashed worker can hold an invoice
	DefaultLockTTL = 2 * time.Minute
)

// releaseScript deletes the key only when the caller still owns it, so a
// worker that overran its TTL cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// InvoiceLock serializes pipeline evaluation per invoice across workers.
// The sweep acquires the lock before touching an invoice; losing the
// acquisition race just means another worker is on it.
type InvoiceLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInvoiceLock(client *redis.Client, ttl time.Duration) *InvoiceLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &InvoiceLock{client: client, ttl: ttl}
}

func (l *InvoiceLock) buildKey(invoiceSID string) string {
	return invoiceLockPrefix + invoiceSID
}

// Acquire attempts to take the lock. On success it returns an owner token
// that must be passed to Release.
func (l *InvoiceLock) Acquire(ctx context.Context, invoiceSID string) (string, bool, error) {
	token, err := id.Generate(16)
	if err != nil {
		return "", false, fmt.Errorf("failed to generate lock token: %w", err)
	}

	// SET NX PX: atomic acquire with bounded hold time
	acquired, err := l.client.SetNX(ctx, l.buildKey(invoiceSID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire invoice lock: %w", err)
	}
	return token, acquired, nil
}

// Release frees the lock if the token still owns it.
func (l *InvoiceLock) Release(ctx context.Context, invoiceSID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.buildKey(invoiceSID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release invoice lock: %w", err)
	}
	return nil
}
