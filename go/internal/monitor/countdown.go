package monitor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// resyncAfter is the staleness window: a sample arriving this long (or
	// longer) after the previous one is always applied.
	resyncAfter = 3 * time.Second

	// resyncTolerance is the largest drift, in whole seconds, between the
	// locally ticking value and an incoming sample that is still treated
	// as poll jitter and ignored.
	resyncTolerance = 2

	tickInterval = time.Second
)

// CountdownReconciler presents a smoothly decrementing countdown whose
// authoritative value is only refreshed periodically by polling. Between
// polls a local one-second ticker decrements the displayed value; incoming
// samples replace it only when the reconciler has no value yet, the last
// sample is stale, or the sample disagrees with the local value by more
// than the jitter tolerance.
type CountdownReconciler struct {
	clock    clockwork.Clock
	onUpdate func(remaining int, active bool)

	mu        sync.Mutex
	displayed int
	active    bool
	lastSync  time.Time
	synced    bool
	stopTick  chan struct{} // non-nil exactly while the local ticker runs
}

// NewCountdownReconciler creates a reconciler driven by the given clock.
// onUpdate, if non-nil, is invoked after every change to the displayed
// value; it runs outside the reconciler's lock and must not call back in.
func NewCountdownReconciler(clock clockwork.Clock, onUpdate func(remaining int, active bool)) *CountdownReconciler {
	return &CountdownReconciler{
		clock:    clock,
		onUpdate: onUpdate,
	}
}

// OnSample feeds one authoritative remaining-time reading into the
// reconciler. The sample replaces the displayed value if there is no
// displayed value, if the previous sample is at least resyncAfter old, or
// if the sample differs from the displayed value by more than
// resyncTolerance seconds. The sync timestamp advances on every call,
// applied or not.
func (r *CountdownReconciler) OnSample(value int) {
	if value < 0 {
		value = 0
	}

	r.mu.Lock()
	now := r.clock.Now()
	apply := !r.active ||
		!r.synced ||
		now.Sub(r.lastSync) >= resyncAfter ||
		absDiff(r.displayed, value) > resyncTolerance
	r.lastSync = now
	r.synced = true

	if !apply {
		r.mu.Unlock()
		return
	}

	r.displayed = value
	wasActive := r.active
	r.active = value > 0
	if r.active && !wasActive {
		r.startTickerLocked()
	} else if !r.active && wasActive {
		r.stopTickerLocked()
	}
	remaining, active := r.displayed, r.active
	r.mu.Unlock()

	r.notify(remaining, active)
}

// Tick decrements the displayed value by one second. Reaching zero clears
// the value and stops the local ticker. Returns whether the countdown is
// still active afterwards.
func (r *CountdownReconciler) Tick() bool {
	return r.tick(nil)
}

// tick is the shared implementation. A non-nil owner identifies the ticker
// goroutine invoking it; a ticker that has been superseded must not touch
// the countdown.
func (r *CountdownReconciler) tick(owner chan struct{}) bool {
	r.mu.Lock()
	if owner != nil && r.stopTick != owner {
		r.mu.Unlock()
		return false
	}
	if !r.active {
		r.mu.Unlock()
		return false
	}
	r.displayed--
	if r.displayed <= 0 {
		r.displayed = 0
		r.active = false
		// The ticker goroutine observes the false return and exits on
		// its own; just drop the handle so a later sample restarts it.
		r.stopTick = nil
	}
	remaining, active := r.displayed, r.active
	r.mu.Unlock()

	r.notify(remaining, active)
	return active
}

// Reset clears the displayed value and the resync state. Used on phase
// changes so countdowns for different phases never bleed into each other,
// and on teardown.
func (r *CountdownReconciler) Reset() {
	r.mu.Lock()
	wasActive := r.active
	r.displayed = 0
	r.active = false
	r.synced = false
	r.lastSync = time.Time{}
	r.stopTickerLocked()
	r.mu.Unlock()

	if wasActive {
		r.notify(0, false)
	}
}

// Value returns the displayed countdown in seconds, and whether a value is
// present at all.
func (r *CountdownReconciler) Value() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayed, r.active
}

func (r *CountdownReconciler) startTickerLocked() {
	stop := make(chan struct{})
	r.stopTick = stop
	ticker := r.clock.NewTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if !r.tick(stop) {
					return
				}
			}
		}
	}()
}

func (r *CountdownReconciler) stopTickerLocked() {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
}

func (r *CountdownReconciler) notify(remaining int, active bool) {
	if r.onUpdate != nil {
		r.onUpdate(remaining, active)
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
