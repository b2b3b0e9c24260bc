package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_ElapsedDays(t *testing.T) {
	start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, DurationDays: 10}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "before start", now: start.Add(-72 * time.Hour), want: 1},
		{name: "at start", now: start, want: 1},
		{name: "end of first day", now: start.Add(24*time.Hour - time.Nanosecond), want: 1},
		{name: "second day", now: start.Add(24 * time.Hour), want: 2},
		{name: "last day", now: start.Add(9*24*time.Hour + time.Hour), want: 10},
		{name: "after close", now: start.Add(40 * 24 * time.Hour), want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ElapsedDays(tt.now))
		})
	}
}

func TestWindow_ZeroDuration(t *testing.T) {
	start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start}

	assert.Equal(t, 1, w.ElapsedDays(start.Add(100*time.Hour)))
	assert.Equal(t, time.Duration(0), w.NextIncrease(start))
}

func TestWindow_NextIncrease(t *testing.T) {
	start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, DurationDays: 3}

	assert.Equal(t, 24*time.Hour+2*time.Hour, w.NextIncrease(start.Add(-2*time.Hour)))
	assert.Equal(t, 10*time.Hour, w.NextIncrease(start.Add(14*time.Hour)))
	assert.Equal(t, time.Hour, w.NextIncrease(start.Add(47*time.Hour)))
	assert.Equal(t, time.Duration(0), w.NextIncrease(start.Add(50*time.Hour)))
}

func TestWindow_Closed(t *testing.T) {
	start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, DurationDays: 2}

	assert.False(t, w.Closed(start))
	assert.False(t, w.Closed(start.Add(47*time.Hour)))
	assert.True(t, w.Closed(start.Add(48*time.Hour)))
	assert.Equal(t, start.Add(48*time.Hour), w.End())
}
