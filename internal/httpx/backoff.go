package httpx

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes capped exponential delays with optional jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBackoff returns a Backoff for the supplied policy. Zero values fall back
// to the DefaultRetryPolicy delays.
func NewBackoff(policy RetryPolicy) *Backoff {
	base := policy.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	max := policy.MaxDelay
	if max <= 0 {
		max = DefaultRetryPolicy.MaxDelay
	}
	if max < base {
		max = base
	}
	jitter := math.Min(math.Max(policy.Jitter, 0), 1)
	return &Backoff{
		BaseDelay: base,
		MaxDelay:  max,
		Jitter:    jitter,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForAttempt returns the delay before retry number attempt (0-indexed).
func (b *Backoff) ForAttempt(attempt int) time.Duration {
	delay := b.BaseDelay
	if attempt > 0 {
		// Past ~30 doublings every sane base has crossed MaxDelay anyway.
		if attempt > 30 {
			attempt = 30
		}
		delay = time.Duration(float64(b.BaseDelay) * math.Pow(2, float64(attempt)))
	}
	if delay <= 0 || delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return b.jitter(delay)
}

func (b *Backoff) jitter(delay time.Duration) time.Duration {
	if b.Jitter == 0 {
		return delay
	}
	b.mu.Lock()
	spread := b.rnd.Float64()*2 - 1
	b.mu.Unlock()
	factor := 1 + spread*b.Jitter
	if factor < 0 {
		factor = 0
	}
	return time.Duration(float64(delay) * factor)
}
