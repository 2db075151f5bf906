package processor

import (
	"context"
	"time"

	"github.com/a11yops/scanbatch/internal/scan"
)

// Backoff bases per error kind. Rate-limit rejections get a long base so a
// retry lands after the provider's window resets; everything else retries
// quickly.
const (
	rateLimitBackoffBase = 60 * time.Second
	defaultBackoffBase   = 5 * time.Second
)

// Delay returns the backoff before the given retry (1-based): the kind's
// base doubled per retry, e.g. 60s, 120s, 240s for RATE_LIMIT and 5s, 10s,
// 20s otherwise. Pure function; feed the result into a cancellable sleep.
func Delay(retry int, kind scan.ErrorKind) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := defaultBackoffBase
	if kind == scan.ErrKindRateLimit {
		base = rateLimitBackoffBase
	}
	return base << (retry - 1)
}

// sleep suspends for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
