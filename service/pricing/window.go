package pricing

import (
	"time"

	"github.com/brojonat/presale/service/chains"
)

const day = 24 * time.Hour

// Window is the presale period during which the price steps up once a day.
type Window struct {
	Start        time.Time
	DurationDays int
}

func (w Window) duration() int {
	return max(1, w.DurationDays)
}

// End returns the instant the window closes.
func (w Window) End() time.Time {
	return w.Start.Add(time.Duration(w.duration()) * day)
}

// ElapsedDays returns the 1-based presale day at now, pinned to 1 before
// the start and to DurationDays after the close.
func (w Window) ElapsedDays(now time.Time) int {
	if now.Before(w.Start) {
		return 1
	}
	d := int(now.Sub(w.Start)/day) + 1
	return max(1, min(w.duration(), d))
}

// Closed reports whether now is at or past the end of the window.
func (w Window) Closed(now time.Time) bool {
	return !now.Before(w.End())
}

// NextIncrease is the countdown to the next daily price step. It is zero
// on the final day and after the window closes.
func (w Window) NextIncrease(now time.Time) time.Duration {
	d := w.ElapsedDays(now)
	if d >= w.duration() {
		return 0
	}
	next := w.Start.Add(time.Duration(d) * day)
	return next.Sub(now)
}

// QuoteAt prices a purchase at the presale day containing now.
func (w Window) QuoteAt(cfg chains.ChainConfig, now time.Time, shares int) Quote {
	return Calculate(cfg, w.ElapsedDays(now), shares)
}
