package search

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period used by SearchDebounced.
const DefaultDebounceWindow = time.Second

// Timer is the subset of *time.Timer used by the debouncer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once adapted.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer runs an action once after a quiet window. Triggering while a run
// is pending restarts the window instead of scheduling a second run.
type Debouncer struct {
	mu        sync.Mutex
	window    time.Duration
	afterFunc AfterFunc
	action    func()
	timer     Timer
	seq       uint64
}

// NewDebouncer returns a debouncer firing action after window. A nil
// afterFunc uses time.AfterFunc.
func NewDebouncer(window time.Duration, afterFunc AfterFunc, action func()) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if afterFunc == nil {
		afterFunc = stdAfterFunc
	}
	return &Debouncer{window: window, afterFunc: afterFunc, action: action}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.afterFunc(d.window, func() {
		d.mu.Lock()
		// A timer that fired concurrently with a reschedule must not run.
		if seq != d.seq || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.action()
	})
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
