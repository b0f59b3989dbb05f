package builder

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout is the default per-build timeout.
const DefaultTimeout = 30 * time.Minute

// WithTimeout wraps a context with a per-build timeout.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ParseTimeout parses a manifest duration such as "45m"; empty means DefaultTimeout.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid build timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("build timeout must be positive, got %q", s)
	}
	return d, nil
}
