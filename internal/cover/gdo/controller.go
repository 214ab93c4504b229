package gdo

import (
	"time"

	"github.com/jkaflik/garagedoor2mqtt/internal/cover"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPublishInterval = time.Second

type Config struct {
	Name string

	OpenDuration  time.Duration
	CloseDuration time.Duration

	// Optional. Without an endstop the matching end is inferred from the
	// position estimate.
	OpenEndstop  *Debouncer
	CloseEndstop *Debouncer

	// How much longer than the configured duration a motion may take before
	// a missing endstop is treated as the door having been stopped.
	EndstopGrace time.Duration

	Policy          PressPolicy
	PublishInterval time.Duration
}

func (c Config) validate() error {
	if c.OpenDuration <= 0 {
		return errors.Errorf("%s: open duration must be positive, got %s", c.Name, c.OpenDuration)
	}
	if c.CloseDuration <= 0 {
		return errors.Errorf("%s: close duration must be positive, got %s", c.Name, c.CloseDuration)
	}
	if c.EndstopGrace < 0 {
		return errors.Errorf("%s: endstop grace can't be negative, got %s", c.Name, c.EndstopGrace)
	}
	if c.OpenEndstop != nil && c.OpenEndstop.Source() != OpenEndstop {
		return errors.Errorf("%s: open endstop debouncer is bound to the %s", c.Name, c.OpenEndstop.Source())
	}
	if c.CloseEndstop != nil && c.CloseEndstop.Source() != CloseEndstop {
		return errors.Errorf("%s: close endstop debouncer is bound to the %s", c.Name, c.CloseEndstop.Source())
	}
	return nil
}

// Controller is the garage door state machine. It maps open, close, stop
// and toggle onto presses of the opener button and keeps the door state and
// position up to date from endstops and elapsed time.
type Controller struct {
	cfg        Config
	estimator  *Estimator
	dispatcher *Dispatcher

	state  cover.State
	target float64

	updateHandlers []cover.UpdateHandler
	lastPublish    time.Time
}

// NewController validates cfg and derives the initial state from whatever
// the endstops already read.
func NewController(cfg Config, dispatcher *Dispatcher) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == nil {
		cfg.Policy = SinglePressPolicy
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultPublishInterval
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}

	c := &Controller{
		cfg:        cfg,
		estimator:  NewEstimator(cfg.OpenDuration, cfg.CloseDuration, UnknownPosition),
		dispatcher: dispatcher,
		state:      cover.StoppedState,
		target:     UnknownPosition,
	}
	c.syncEndstops()

	return c, nil
}

func (c *Controller) Name() string {
	return c.cfg.Name
}

func (c *Controller) State() cover.State {
	return c.state
}

func (c *Controller) Position() float64 {
	return c.estimator.Position()
}

func (c *Controller) Motion() MotionState {
	return c.estimator.Motion()
}

func (c *Controller) OnUpdate(h cover.UpdateHandler) {
	c.updateHandlers = append(c.updateHandlers, h)
}

func (c *Controller) Open(now time.Time) {
	logrus.Infof("%s: open", c.cfg.Name)
	c.startDirection(MotionOpening, cover.OpenPosition, now, true)
}

func (c *Controller) Close(now time.Time) {
	logrus.Infof("%s: close", c.cfg.Name)
	c.startDirection(MotionClosing, cover.ClosedPosition, now, true)
}

func (c *Controller) Stop(now time.Time) {
	logrus.Infof("%s: stop", c.cfg.Name)

	from := c.estimator.Motion()
	if from == MotionIdle {
		logrus.Debugf("%s: door is not moving, nothing to stop", c.cfg.Name)
		return
	}

	pos := c.estimator.Update(now)
	logrus.Infof("%s: door is %s, asked to stop at %.2f", c.cfg.Name, from, pos)
	c.press(from, pos, MotionIdle)
	c.estimator.Halt(now)
	c.target = c.estimator.Position()
	c.state = cover.StoppedState
	c.notify(now)
}

// Toggle opens a closed door, closes an open one and stops a moving one.
// A stopped door has no obvious direction, so it needs an explicit command.
func (c *Controller) Toggle(now time.Time) {
	switch c.state {
	case cover.ClosedState:
		c.Open(now)
	case cover.OpenState:
		c.Close(now)
	case cover.OpeningState, cover.ClosingState:
		c.Stop(now)
	default:
		logrus.Warnf("%s: toggle ignored, door is %s at %.2f, open or close it explicitly", c.cfg.Name, c.state, c.estimator.Position())
	}
}

// SetPosition moves the door towards target and stops it there. Targets of
// 0 and 1 behave as close and open, the opener stops itself at the ends.
func (c *Controller) SetPosition(target float64, now time.Time) {
	target = clamp(target)
	logrus.Infof("%s: set target position to %.2f", c.cfg.Name, target)

	pos := c.estimator.Update(now)
	switch {
	case target == cover.OpenPosition:
		c.Open(now)
	case target == cover.ClosedPosition:
		c.Close(now)
	case target > pos:
		c.startDirection(MotionOpening, target, now, true)
	case target < pos:
		c.startDirection(MotionClosing, target, now, true)
	default:
		logrus.Infof("%s: nothing to do, already at target position", c.cfg.Name)
	}
}

// ResetPosition replaces the position estimate of an idle door, e.g. with
// a value restored after a restart. Endstop readings take precedence.
func (c *Controller) ResetPosition(position float64, now time.Time) {
	if c.estimator.Motion() != MotionIdle {
		logrus.Warnf("%s: position reset ignored while door is %s", c.cfg.Name, c.state)
		return
	}
	if c.endstopFault() {
		logrus.Warnf("%s: position reset ignored, both endstops triggered", c.cfg.Name)
		return
	}

	c.estimator.Reset(position)
	c.state = stateAt(c.estimator.Position())
	c.syncEndstops()
	c.target = c.estimator.Position()
	c.notify(now)
}

// HandleEdge feeds a raw endstop edge through its debouncer and reacts to
// a debounced change, if any. Most changes only settle in a later Loop.
func (c *Controller) HandleEdge(e Edge) {
	d := c.endstop(e.Source)
	if d == nil {
		logrus.Warnf("%s: edge from unconfigured %s ignored", c.cfg.Name, e.Source)
		return
	}

	if st, changed := d.Feed(e); changed {
		c.onEndstop(e.Source, st, e.Time)
	}
}

// Loop advances the controller to now. It is meant to be called on every
// tick and only does arithmetic unless something changes.
func (c *Controller) Loop(now time.Time) {
	for _, d := range []*Debouncer{c.cfg.OpenEndstop, c.cfg.CloseEndstop} {
		if d == nil {
			continue
		}
		if st, changed := d.Poll(now); changed {
			c.onEndstop(d.Source(), st, now)
		}
	}

	motion := c.estimator.Motion()
	if motion == MotionIdle {
		return
	}

	pos := c.estimator.Update(now)

	if c.atTarget(motion, pos) {
		switch c.target {
		case cover.OpenPosition:
			logrus.Infof("%s: door estimated open", c.cfg.Name)
			c.estimator.Halt(now)
			c.state = cover.OpenState
		case cover.ClosedPosition:
			logrus.Infof("%s: door estimated closed", c.cfg.Name)
			c.estimator.Halt(now)
			c.state = cover.ClosedState
		default:
			logrus.Infof("%s: target position %.2f reached", c.cfg.Name, c.target)
			c.press(motion, pos, MotionIdle)
			c.estimator.Halt(now)
			c.state = cover.StoppedState
		}
		c.notify(now)
		return
	}

	if c.endstopOverdue(motion, now) && !c.endstopFault() {
		logrus.Warnf("%s: failed to reach %s after %s, likely stopped externally", c.cfg.Name, c.endstopFor(motion).Source(), c.estimator.Elapsed(now))
		c.estimator.Reset(UnknownPosition)
		c.target = UnknownPosition
		c.state = cover.StoppedState
		c.notify(now)
		return
	}

	if now.Sub(c.lastPublish) >= c.cfg.PublishInterval {
		c.notify(now)
	}
}

func (c *Controller) startDirection(dir MotionState, target float64, now time.Time, withPress bool) {
	from := c.estimator.Motion()
	pos := c.estimator.Update(now)

	if from == dir {
		if target != c.target {
			logrus.Infof("%s: door is already %s, retarget to %.2f", c.cfg.Name, dir, target)
			c.target = target
			return
		}
		logrus.Debugf("%s: nothing to do, door is already %s", c.cfg.Name, dir)
		return
	}

	if from == MotionIdle {
		if dir == MotionOpening && c.state == cover.OpenState {
			logrus.Infof("%s: door is fully open, can't open more", c.cfg.Name)
			return
		}
		if dir == MotionClosing && c.state == cover.ClosedState {
			logrus.Infof("%s: door is fully closed, can't close more", c.cfg.Name)
			return
		}
	}

	if withPress {
		logrus.Infof("%s: door is %s at %.2f, asked to start %s", c.cfg.Name, c.state, pos, dir)
		c.press(from, pos, dir)
	} else {
		logrus.Infof("%s: door started %s externally", c.cfg.Name, dir)
	}

	c.estimator.StartMotion(dir, now)
	c.target = target
	if dir == MotionOpening {
		c.state = cover.OpeningState
	} else {
		c.state = cover.ClosingState
	}
	c.notify(now)
}

func (c *Controller) onEndstop(src Source, st EndstopState, now time.Time) {
	if c.endstopFault() {
		logrus.Errorf("%s: both endstops triggered, sensor fault, holding %s at %.2f", c.cfg.Name, c.state, c.estimator.Position())
		return
	}

	if st == EndstopTriggered {
		logrus.Infof("%s: %s reached, took %s", c.cfg.Name, src, c.estimator.Elapsed(now))
		c.estimator.OnEndstop(src)
		c.target = c.estimator.Position()
		c.state = stateAt(c.target)
		c.notify(now)
		return
	}

	logrus.Infof("%s: %s released", c.cfg.Name, src)

	other := CloseEndstop
	if src == CloseEndstop {
		other = OpenEndstop
	}
	if c.endstopState(other) == EndstopTriggered {
		// Leftover of a fault, the other endstop still holds the truth.
		c.estimator.OnEndstop(other)
		c.target = c.estimator.Position()
		c.state = stateAt(c.target)
		c.notify(now)
		return
	}

	if c.estimator.Motion() != MotionIdle {
		return
	}

	// Nobody here pressed the button, the door was moved by something else.
	if src == OpenEndstop {
		c.startDirection(MotionClosing, cover.ClosedPosition, now, false)
	} else {
		c.startDirection(MotionOpening, cover.OpenPosition, now, false)
	}
}

// syncEndstops corrects the position of an idle door by the endstop
// readings.
func (c *Controller) syncEndstops() {
	open, closed := c.endstopState(OpenEndstop), c.endstopState(CloseEndstop)
	pos := c.estimator.Position()

	switch {
	case open == EndstopTriggered && closed == EndstopTriggered:
		logrus.Errorf("%s: both endstops triggered, sensor fault, position left at %.2f", c.cfg.Name, pos)
		return
	case open == EndstopTriggered:
		c.estimator.Reset(cover.OpenPosition)
	case closed == EndstopTriggered:
		c.estimator.Reset(cover.ClosedPosition)
	case open == EndstopClear && pos == cover.OpenPosition,
		closed == EndstopClear && pos == cover.ClosedPosition:
		c.estimator.Reset(UnknownPosition)
	default:
		return
	}

	c.state = stateAt(c.estimator.Position())
	c.target = c.estimator.Position()
}

func (c *Controller) atTarget(motion MotionState, pos float64) bool {
	switch motion {
	case MotionOpening:
		if c.target == cover.OpenPosition && c.cfg.OpenEndstop != nil {
			return false
		}
		return pos >= c.target
	case MotionClosing:
		if c.target == cover.ClosedPosition && c.cfg.CloseEndstop != nil {
			return false
		}
		return pos <= c.target
	}
	return true
}

func (c *Controller) endstopOverdue(motion MotionState, now time.Time) bool {
	if c.endstopFor(motion) == nil {
		return false
	}

	limit := c.cfg.OpenDuration
	if motion == MotionClosing {
		limit = c.cfg.CloseDuration
	}
	return c.estimator.Elapsed(now) > limit+c.cfg.EndstopGrace
}

func (c *Controller) press(from MotionState, pos float64, to MotionState) {
	p := c.cfg.Policy.Press(from, pos, to)
	if p == NoPress {
		return
	}

	logrus.Infof("%s: %s press", c.cfg.Name, p)
	c.dispatcher.Fire(p)
}

func (c *Controller) notify(now time.Time) {
	c.lastPublish = now
	pos := c.estimator.Position()
	for _, h := range c.updateHandlers {
		h(c.state, pos)
	}
}

func (c *Controller) endstop(src Source) *Debouncer {
	if src == OpenEndstop {
		return c.cfg.OpenEndstop
	}
	return c.cfg.CloseEndstop
}

func (c *Controller) endstopFor(motion MotionState) *Debouncer {
	switch motion {
	case MotionOpening:
		return c.cfg.OpenEndstop
	case MotionClosing:
		return c.cfg.CloseEndstop
	}
	return nil
}

// endstopFault reports both endstops triggered at once. The state held
// before the fault is kept until it clears.
func (c *Controller) endstopFault() bool {
	return c.endstopState(OpenEndstop) == EndstopTriggered && c.endstopState(CloseEndstop) == EndstopTriggered
}

func (c *Controller) endstopState(src Source) EndstopState {
	if d := c.endstop(src); d != nil {
		return d.State()
	}
	return EndstopUnknown
}

func stateAt(position float64) cover.State {
	switch position {
	case cover.OpenPosition:
		return cover.OpenState
	case cover.ClosedPosition:
		return cover.ClosedState
	}
	return cover.StoppedState
}
