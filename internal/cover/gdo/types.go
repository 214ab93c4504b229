// Package gdo implements a garage door opener cover: endstop debouncing,
// duration based position estimation, single/double press dispatch and the
// state machine tying them together.
//
// Nothing in this package is safe for concurrent use except Runner, which
// owns a Controller and serializes every input into one goroutine.
package gdo

import (
	"time"
)

// UnknownPosition is assumed when neither an endstop nor a restored value
// tells where the door is.
const UnknownPosition = 0.5

type MotionState int

const (
	MotionIdle MotionState = iota
	MotionOpening
	MotionClosing
)

func (m MotionState) String() string {
	switch m {
	case MotionOpening:
		return "opening"
	case MotionClosing:
		return "closing"
	default:
		return "idle"
	}
}

type EndstopState int

const (
	EndstopUnknown EndstopState = iota
	EndstopClear
	EndstopTriggered
)

func (s EndstopState) String() string {
	switch s {
	case EndstopClear:
		return "clear"
	case EndstopTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Source tells which endstop an edge comes from.
type Source int

const (
	OpenEndstop Source = iota
	CloseEndstop
)

func (s Source) String() string {
	if s == OpenEndstop {
		return "open endstop"
	}
	return "close endstop"
}

// Edge is a raw, undebounced transition of an endstop input.
type Edge struct {
	Source Source
	Level  bool
	Time   time.Time
}
