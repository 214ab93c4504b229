package gdo

import (
	"sync/atomic"
	"time"
)

// The obstruction line of the opener idles HIGH with a short LOW pulse
// every ~7ms while the beam is clear. It stays HIGH while obstructed and
// drops LOW while the opener sleeps, slowly enough to look like an
// obstruction for a while.
const (
	obstructionCheckPeriod = 50 * time.Millisecond
	obstructionMinPulses   = 3
	obstructionAsleepDelay = 700 * time.Millisecond
)

// Obstruction turns pulses and the level of the obstruction line into an
// obstructed/clear state.
type Obstruction struct {
	pulses atomic.Int32

	lastCheck  time.Time
	lastAsleep time.Time

	known      bool
	obstructed bool
}

func NewObstruction(now time.Time) *Obstruction {
	return &Obstruction{lastCheck: now, lastAsleep: now}
}

// Pulse counts a falling edge. Safe to call from any goroutine.
func (o *Obstruction) Pulse() {
	o.pulses.Add(1)
}

func (o *Obstruction) Obstructed() bool {
	return o.obstructed
}

// Sample evaluates the pulses counted since the last check period. level
// is the current line level. It returns the state and whether it changed.
func (o *Obstruction) Sample(now time.Time, level bool) (bool, bool) {
	if now.Sub(o.lastCheck) <= obstructionCheckPeriod {
		return o.obstructed, false
	}

	pulses := o.pulses.Swap(0)
	o.lastCheck = now

	next, decided := o.obstructed, false
	switch {
	case pulses > obstructionMinPulses:
		next, decided = false, true
	case pulses == 0 && !level:
		o.lastAsleep = now
	case pulses == 0 && now.Sub(o.lastAsleep) > obstructionAsleepDelay:
		next, decided = true, true
	}

	if !decided {
		return o.obstructed, false
	}

	changed := !o.known || next != o.obstructed
	o.known = true
	o.obstructed = next
	return o.obstructed, changed
}
