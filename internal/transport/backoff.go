package transport

import (
	"context"
	"math/rand"
	"time"
)

// redialDelay returns the pause after failed dial attempt n (1-based) to a
// neighbor. Delays grow by Multiplier from InitialDelay up to the smaller of
// MaxDelay and flushEvery; a neighbor is never retried less often than the
// engine flushes to it. Jitter spreads the result over [d/2, 3d/2).
func (b BackoffConfig) redialDelay(attempt int, flushEvery time.Duration, rng *rand.Rand) time.Duration {
	ceiling := b.MaxDelay
	if flushEvery > 0 && (ceiling <= 0 || flushEvery < ceiling) {
		ceiling = flushEvery
	}
	mult := max(b.Multiplier, 1)

	d := b.InitialDelay
	for i := 1; i < attempt && d > 0; i++ {
		d = time.Duration(float64(d) * mult)
		if ceiling > 0 && d >= ceiling {
			break
		}
	}
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	if b.Jitter && rng != nil && d > 0 {
		d = d/2 + time.Duration(rng.Int63n(int64(d)))
	}
	return max(d, 0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
