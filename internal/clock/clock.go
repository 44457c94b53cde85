// Package clock provides the time source and backoff policy used by the
// retry engine. A Clock can be swapped out in tests so retry behavior is
// verifiable without real sleeps.
package clock

import (
	"context"
	"time"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
	apperrors "github.com/AryanVBW/CommonsProxy-sub000/internal/errors"
)

// Clock abstracts time for the retry engine.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	// Returns ctx.Err() when cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall-clock implementation used in production.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// Sleep waits for d, aborting early if ctx is cancelled.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
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

// MinBackoff is the floor applied to every computed wait so classification
// mistakes cannot turn into busy loops.
const MinBackoff = config.MinBackoff

// backoffByKind maps an error kind to its default retry delay.
var backoffByKind = map[apperrors.Kind]time.Duration{
	apperrors.KindRateLimit:     30 * time.Second,
	apperrors.KindModelCapacity: 15 * time.Second,
	apperrors.KindServerError:   20 * time.Second,
	apperrors.KindUnknown:       60 * time.Second,
}

// BackoffForKind returns the default wait for an error kind.
func BackoffForKind(kind apperrors.Kind) time.Duration {
	if d, ok := backoffByKind[kind]; ok {
		return d
	}
	return backoffByKind[apperrors.KindUnknown]
}

// CapacityBackoff returns the wait for the Nth capacity retry (0-based).
// Attempts past the end of the schedule reuse the last tier.
func CapacityBackoff(attempt int) time.Duration {
	tiers := config.CapacityBackoffTiers
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(tiers) {
		attempt = len(tiers) - 1
	}
	return tiers[attempt]
}

// ClampWait applies the minimum backoff floor to a computed wait.
func ClampWait(d time.Duration) time.Duration {
	if d < MinBackoff {
		return MinBackoff
	}
	return d
}
