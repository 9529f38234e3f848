package mg

import (
	"sync"
	"time"
)

// Debouncer turns a burst of edit notifications into an immediate compile
// followed by a reconciliation once the edits settle.
//
// The first Notify while no timer is active calls compile right away and arms
// the timer for Initial. Every Notify while the timer is active re-arms it for Settle.
// When the timer fires, it becomes inactive and reconcile is called.
type Debouncer struct {
	compile   func()
	reconcile func()

	mu      sync.Mutex
	initial time.Duration
	settle  time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer(initial, settle time.Duration, compile, reconcile func()) *Debouncer {
	return &Debouncer{
		initial:   initial,
		settle:    settle,
		compile:   compile,
		reconcile: reconcile,
	}
}

func (d *Debouncer) Notify() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	immediate := d.timer == nil
	if immediate {
		d.arm(d.initial)
	} else {
		d.arm(d.settle)
	}
	d.mu.Unlock()

	if immediate {
		d.compile()
	}
}

// Retry arms the timer for delay, replacing any active timer.
func (d *Debouncer) Retry(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.arm(delay)
	}
}

// Active reports whether a timer is armed
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.timer != nil
}

// SetDelays changes the delays used by future calls to Notify
func (d *Debouncer) SetDelays(initial, settle time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initial = initial
	d.settle = settle
}

// Stop disarms the timer. Later calls to Notify and Retry have no effect.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.disarm()
}

func (d *Debouncer) disarm() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) arm(delay time.Duration) {
	d.disarm()
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// a timer that was replaced after it had already fired
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.reconcile()
}
