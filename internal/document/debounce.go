package document

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls and runs only the latest one after
// the quiet period. Runs happen on a timer goroutine and are not awaited.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
	stopped bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn, replacing any call still waiting.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush runs the waiting call now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop flushes and refuses further calls.
func (d *Debouncer) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
