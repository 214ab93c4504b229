package gdo

type Press int

const (
	NoPress Press = iota
	SinglePress
	DoublePress
)

func (p Press) String() string {
	switch p {
	case SinglePress:
		return "single"
	case DoublePress:
		return "double"
	default:
		return "none"
	}
}

type PressHandler func(p Press)

// Dispatcher fires press events to whatever is bound to them. It knows
// nothing about how a press reaches the opener.
type Dispatcher struct {
	handlers map[Press][]PressHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[Press][]PressHandler{}}
}

func (d *Dispatcher) Bind(p Press, h PressHandler) {
	d.handlers[p] = append(d.handlers[p], h)
}

// BindAll binds h to both single and double press.
func (d *Dispatcher) BindAll(h PressHandler) {
	d.Bind(SinglePress, h)
	d.Bind(DoublePress, h)
}

func (d *Dispatcher) SinglePress() {
	d.Fire(SinglePress)
}

func (d *Dispatcher) DoublePress() {
	d.Fire(DoublePress)
}

func (d *Dispatcher) Fire(p Press) {
	for _, h := range d.handlers[p] {
		h(p)
	}
}

// PressPolicy decides which press moves the door from the motion it is in
// to the requested one. position is the estimate at the time of the call.
type PressPolicy interface {
	Press(from MotionState, position float64, to MotionState) Press
}

type PressPolicyFunc func(from MotionState, position float64, to MotionState) Press

func (f PressPolicyFunc) Press(from MotionState, position float64, to MotionState) Press {
	return f(from, position, to)
}

// SinglePressPolicy presses once for every transition. It fits openers
// whose button cycles open, stop, close, stop.
var SinglePressPolicy PressPolicy = PressPolicyFunc(func(MotionState, float64, MotionState) Press {
	return SinglePress
})

// CyclePolicy fits openers where a double press is needed to stop a
// closing door, to reverse an opening one, and to open a partially open
// door further.
var CyclePolicy PressPolicy = PressPolicyFunc(func(from MotionState, position float64, to MotionState) Press {
	switch to {
	case MotionIdle:
		if from == MotionClosing {
			return DoublePress
		}
		return SinglePress
	case MotionOpening:
		if from == MotionIdle && position > 0 {
			return DoublePress
		}
		return SinglePress
	case MotionClosing:
		if from == MotionOpening {
			return DoublePress
		}
		return SinglePress
	}
	return NoPress
})

// PolicyByName returns the press policy registered under name.
func PolicyByName(name string) (PressPolicy, bool) {
	switch name {
	case "", "single":
		return SinglePressPolicy, true
	case "cycle":
		return CyclePolicy, true
	}
	return nil, false
}
