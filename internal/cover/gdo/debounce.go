package gdo

import (
	"time"
)

const DefaultDebounceInterval = 50 * time.Millisecond

// Debouncer filters raw edges of a single endstop input.
//
// A new level is only committed once it has held for Interval. A level
// reverting inside the window is dropped, so a spike never shows up as a
// change.
type Debouncer struct {
	source    Source
	interval  time.Duration
	activeLow bool

	state EndstopState

	pending      bool
	pendingLevel bool
	pendingSince time.Time
}

func NewDebouncer(source Source, interval time.Duration, activeLow bool) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	return &Debouncer{source: source, interval: interval, activeLow: activeLow}
}

func (d *Debouncer) Source() Source {
	return d.source
}

func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// State returns the debounced state, EndstopUnknown until the first reading.
func (d *Debouncer) State() EndstopState {
	return d.state
}

// Seed sets the initial reading without reporting a change.
func (d *Debouncer) Seed(level bool, now time.Time) {
	d.state = d.stateOf(level)
	d.pending = false
}

// Feed consumes a raw edge and reports the debounced state and whether it
// changed. The first reading of an unseeded input is taken as is, any later
// level only starts the debounce window.
func (d *Debouncer) Feed(e Edge) (EndstopState, bool) {
	if d.state == EndstopUnknown {
		d.state = d.stateOf(e.Level)
		return d.state, true
	}

	// a level that already held long enough wins before the new edge counts
	st, changed := d.Poll(e.Time)

	if d.stateOf(e.Level) == d.state {
		d.pending = false
		return st, changed
	}
	if !d.pending || d.pendingLevel != e.Level {
		d.pending = true
		d.pendingLevel = e.Level
		d.pendingSince = e.Time
	}
	return st, changed
}

// Poll commits a pending level once it has held for the whole interval.
func (d *Debouncer) Poll(now time.Time) (EndstopState, bool) {
	if !d.pending || now.Sub(d.pendingSince) < d.interval {
		return d.state, false
	}

	d.pending = false
	next := d.stateOf(d.pendingLevel)
	if next == d.state {
		return d.state, false
	}

	d.state = next
	return d.state, true
}

func (d *Debouncer) stateOf(level bool) EndstopState {
	if level != d.activeLow {
		return EndstopTriggered
	}
	return EndstopClear
}
