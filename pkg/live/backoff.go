package live

import (
	"sync"
	"time"
)

const (
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultMaxAttempts       = 10
	DefaultHeartbeatInterval = 30 * time.Second
)

// ReconnectPolicy is the single source of reconnect timing. MaxAttempts of
// zero means retry forever.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns exponential backoff from 1s capped at 10s
// with no attempt ceiling.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

// Delay returns the wait before 1-indexed attempt k
func (p ReconnectPolicy) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}

	d := base
	for i := 1; i < k; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// backoff counts attempts against a policy
type backoff struct {
	mu       sync.Mutex
	policy   ReconnectPolicy
	attempts int
}

func newBackoff(p ReconnectPolicy) *backoff {
	return &backoff{policy: p}
}

// Next reserves the next attempt and returns its delay. It reports false
// once the policy ceiling has been reached.
func (b *backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy.MaxAttempts > 0 && b.attempts >= b.policy.MaxAttempts {
		return 0, false
	}
	b.attempts++
	return b.policy.Delay(b.attempts), true
}

func (b *backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

func (b *backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
