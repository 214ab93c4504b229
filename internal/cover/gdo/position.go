package gdo

import (
	"time"
)

// Estimator tracks the door position from the time spent moving.
type Estimator struct {
	openDuration  time.Duration
	closeDuration time.Duration

	motion    MotionState
	position  float64
	origin    float64
	startedAt time.Time
}

func NewEstimator(openDuration, closeDuration time.Duration, position float64) *Estimator {
	return &Estimator{
		openDuration:  openDuration,
		closeDuration: closeDuration,
		position:      clamp(position),
	}
}

func (e *Estimator) Position() float64 {
	return e.position
}

func (e *Estimator) Motion() MotionState {
	return e.motion
}

// StartMotion begins a motion phase at now. Starting the direction the door
// is already moving in does nothing and returns false.
func (e *Estimator) StartMotion(dir MotionState, now time.Time) bool {
	if dir == e.motion {
		return false
	}

	e.Update(now)
	e.motion = dir
	e.origin = e.position
	e.startedAt = now
	return true
}

// Update recomputes the position for now and returns it.
func (e *Estimator) Update(now time.Time) float64 {
	var duration time.Duration
	var dir float64
	switch e.motion {
	case MotionOpening:
		duration, dir = e.openDuration, 1
	case MotionClosing:
		duration, dir = e.closeDuration, -1
	default:
		return e.position
	}

	elapsed := now.Sub(e.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	e.position = clamp(e.origin + dir*float64(elapsed)/float64(duration))
	return e.position
}

// Elapsed returns the time spent in the current motion phase.
func (e *Estimator) Elapsed(now time.Time) time.Duration {
	if e.motion == MotionIdle {
		return 0
	}
	return now.Sub(e.startedAt)
}

// OnEndstop snaps the position to the end the endstop marks and ends the
// motion phase.
func (e *Estimator) OnEndstop(src Source) {
	if src == OpenEndstop {
		e.position = 1
	} else {
		e.position = 0
	}
	e.motion = MotionIdle
}

// Halt freezes the position at its estimate for now.
func (e *Estimator) Halt(now time.Time) float64 {
	e.Update(now)
	e.motion = MotionIdle
	return e.position
}

// Reset overrides the position and ends any motion phase.
func (e *Estimator) Reset(position float64) {
	e.position = clamp(position)
	e.motion = MotionIdle
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
