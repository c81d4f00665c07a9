package publisher

import (
	"sync"
	"time"

	"github.com/ternarybob/threadforge/internal/common"
)

// rateWindow is a sliding window counter over publish actions.
//
// The window holds the timestamps of the last `window` duration of
// actions, capped at maxActions. State is process local and rebuilt
// empty on restart; the window only throttles, it never grants rights,
// so losing it is harmless.
type rateWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	window     time.Duration
	maxActions int
	clock      common.Clock
}

func newRateWindow(window time.Duration, maxActions int, clock common.Clock) *rateWindow {
	return &rateWindow{
		window:     window,
		maxActions: maxActions,
		clock:      clock,
	}
}

// purge drops timestamps older than the window. Caller holds the lock.
func (w *rateWindow) purge(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
}

// CanAdmit reports whether n more actions fit in the current window.
func (w *rateWindow) CanAdmit(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.clock.Now())
	return len(w.timestamps)+n <= w.maxActions
}

// Record appends n actions at the current time.
func (w *rateWindow) Record(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	for i := 0; i < n; i++ {
		w.timestamps = append(w.timestamps, now)
	}
}

// RetryAfter estimates how long until the oldest counted action leaves
// the window. Zero when the window is not saturated.
func (w *rateWindow) RetryAfter() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	w.purge(now)
	if len(w.timestamps) == 0 {
		return 0
	}
	wait := w.timestamps[0].Add(w.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
