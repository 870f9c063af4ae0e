package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ago(now time.Time, d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestOnline(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{"never_seen", nil, false},
		{"seen_30s_ago", ago(now, 30*time.Second), true},
		{"seen_90s_ago", ago(now, 90*time.Second), false},
		{"seen_exactly_at_threshold", ago(now, Threshold), false},
		{"seen_just_inside_threshold", ago(now, Threshold-time.Millisecond), true},
		{"clock_skew_future", ago(now, -5*time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Online(tt.lastSeen, now, Threshold))
		})
	}
}

func TestIsOnlineUsesDefaultThreshold(t *testing.T) {
	now := time.Now()
	assert.True(t, IsOnline(ago(now, 59*time.Second), now))
	assert.False(t, IsOnline(ago(now, 61*time.Second), now))
}
