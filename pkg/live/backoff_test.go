package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectPolicy_Delay(t *testing.T) {
	policy := ReconnectPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{6, 10 * time.Second},
		{64, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestReconnectPolicy_DelayMatchesFormula(t *testing.T) {
	policies := []ReconnectPolicy{
		{BaseDelay: 10 * time.Millisecond, MaxDelay: 300 * time.Millisecond},
		{BaseDelay: 250 * time.Millisecond, MaxDelay: time.Minute},
		{BaseDelay: time.Second, MaxDelay: time.Second},
	}

	for _, p := range policies {
		for k := 1; k <= 40; k++ {
			want := p.BaseDelay
			for i := 1; i < k && want < p.MaxDelay; i++ {
				want *= 2
			}
			if want > p.MaxDelay {
				want = p.MaxDelay
			}
			require.Equal(t, want, p.Delay(k), "policy %+v attempt %d", p, k)
		}
	}
}

func TestReconnectPolicy_Defaults(t *testing.T) {
	var zero ReconnectPolicy
	assert.Equal(t, DefaultBaseDelay, zero.Delay(1))
	assert.Equal(t, DefaultMaxDelay, zero.Delay(10))
	assert.Equal(t, DefaultBaseDelay, zero.Delay(0))
}

func TestBackoff_Ceiling(t *testing.T) {
	b := newBackoff(ReconnectPolicy{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: 3})

	var delays []time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
	assert.Equal(t, 3, b.Attempts())

	b.Reset()
	d, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, time.Millisecond, d)
}

func TestBackoff_Unbounded(t *testing.T) {
	b := newBackoff(ReconnectPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	for i := 0; i < 1000; i++ {
		_, ok := b.Next()
		require.True(t, ok)
	}
}
