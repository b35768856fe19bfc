package ports

import (
	"context"
	"time"
)

// CodeStore keeps short-lived values such as issued one-time passwords
type CodeStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrCodeNotFound when the key is absent or expired
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
