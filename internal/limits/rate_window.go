package limits

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// RateWindow counts actions over the trailing hour and day.
// Timestamps are appended in order and pruned on every read, so the lists
// never hold more than a day of history.
//
// Not safe for concurrent use; the owning tenant serializes access.
type RateWindow struct {
	clock clockwork.Clock
	hour  []time.Time
	day   []time.Time
}

func NewRateWindow(clock clockwork.Clock) *RateWindow {
	return &RateWindow{clock: clock}
}

// Record counts one action at the current time.
func (w *RateWindow) Record() {
	now := w.clock.Now()
	w.hour = append(w.hour, now)
	w.day = append(w.day, now)
}

// Allow reports whether one more action fits under both caps.
// A cap of zero or less is unlimited.
func (w *RateWindow) Allow(hourCap, dayCap int) bool {
	hour, day := w.Counts()
	return under(hour, hourCap) && under(day, dayCap)
}

// Counts prunes expired entries and returns the hourly and daily totals.
func (w *RateWindow) Counts() (int, int) {
	now := w.clock.Now()
	w.hour = pruneBefore(w.hour, now.Add(-time.Hour))
	w.day = pruneBefore(w.day, now.Add(-24*time.Hour))
	return len(w.hour), len(w.day)
}

func under(count, ceiling int) bool {
	return ceiling <= 0 || count < ceiling
}

// pruneBefore drops the leading entries older than cutoff.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	// copy down so the backing array does not keep growing forever
	n := copy(ts, ts[i:])
	return ts[:n]
}
