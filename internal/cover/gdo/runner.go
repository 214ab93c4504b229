package gdo

import (
	"context"
	"time"

	"github.com/jkaflik/garagedoor2mqtt/internal/cover"
	"github.com/sirupsen/logrus"
)

const DefaultTick = 100 * time.Millisecond

type commandKind int

const (
	openCommand commandKind = iota
	closeCommand
	stopCommand
	toggleCommand
	setPositionCommand
	resetPositionCommand
)

type command struct {
	kind     commandKind
	position float64
}

type ObstructionHandler func(obstructed bool)

// Runner owns a Controller and is the only goroutine touching it. Commands
// and endstop edges from other goroutines are queued and applied in order,
// between ticks.
type Runner struct {
	controller *Controller
	tick       time.Duration
	now        func() time.Time

	commands chan command
	edges    chan Edge

	obstruction         *Obstruction
	obstructionLevel    func() (bool, error)
	obstructionHandlers []ObstructionHandler
}

var _ cover.StatelessCover = (*Runner)(nil)

func NewRunner(c *Controller, tick time.Duration) *Runner {
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Runner{
		controller: c,
		tick:       tick,
		now:        time.Now,
		commands:   make(chan command, 16),
		edges:      make(chan Edge, 64),
	}
}

// SetClock replaces time.Now for command and tick timestamps.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// AttachObstruction samples o with the line level read by level on every
// tick.
func (r *Runner) AttachObstruction(o *Obstruction, level func() (bool, error)) {
	r.obstruction = o
	r.obstructionLevel = level
}

// OnObstruction must be called before Run.
func (r *Runner) OnObstruction(h ObstructionHandler) {
	r.obstructionHandlers = append(r.obstructionHandlers, h)
}

func (r *Runner) Name() string {
	return r.controller.Name()
}

// OnUpdate must be called before Run.
func (r *Runner) OnUpdate(h cover.UpdateHandler) {
	r.controller.OnUpdate(h)
}

func (r *Runner) Open(ctx context.Context) error {
	return r.submit(ctx, command{kind: openCommand})
}

func (r *Runner) Close(ctx context.Context) error {
	return r.submit(ctx, command{kind: closeCommand})
}

func (r *Runner) Stop(ctx context.Context) error {
	return r.submit(ctx, command{kind: stopCommand})
}

func (r *Runner) Toggle(ctx context.Context) error {
	return r.submit(ctx, command{kind: toggleCommand})
}

func (r *Runner) SetPosition(ctx context.Context, position float64) error {
	return r.submit(ctx, command{kind: setPositionCommand, position: position})
}

func (r *Runner) ResetPosition(ctx context.Context, position float64) error {
	return r.submit(ctx, command{kind: resetPositionCommand, position: position})
}

// Edge queues a raw endstop edge. It never blocks, so it can be called from
// GPIO event handlers; edges are dropped when the queue is full.
func (r *Runner) Edge(e Edge) {
	select {
	case r.edges <- e:
	default:
		logrus.Warnf("%s: edge queue full, %s edge dropped", r.controller.Name(), e.Source)
	}
}

// Run drives the controller until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	return r.run(ctx, ticker.C)
}

func (r *Runner) run(ctx context.Context, ticks <-chan time.Time) error {
	logrus.Infof("%s: runner started, tick %s", r.controller.Name(), r.tick)

	// state derived from the endstops at startup
	r.controller.notify(r.now())

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("%s: runner stopped", r.controller.Name())
			return ctx.Err()
		case cmd := <-r.commands:
			r.apply(cmd)
		case e := <-r.edges:
			r.controller.HandleEdge(e)
		case <-ticks:
			r.drainEdges()
			r.loop()
		}
	}
}

// drainEdges applies edges queued before a tick, so the tick sees them.
func (r *Runner) drainEdges() {
	for {
		select {
		case e := <-r.edges:
			r.controller.HandleEdge(e)
		default:
			return
		}
	}
}

func (r *Runner) submit(ctx context.Context, cmd command) error {
	select {
	case r.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) apply(cmd command) {
	now := r.now()
	switch cmd.kind {
	case openCommand:
		r.controller.Open(now)
	case closeCommand:
		r.controller.Close(now)
	case stopCommand:
		r.controller.Stop(now)
	case toggleCommand:
		r.controller.Toggle(now)
	case setPositionCommand:
		r.controller.SetPosition(cmd.position, now)
	case resetPositionCommand:
		r.controller.ResetPosition(cmd.position, now)
	}
}

func (r *Runner) loop() {
	now := r.now()
	r.controller.Loop(now)

	if r.obstruction == nil {
		return
	}

	level, err := r.obstructionLevel()
	if err != nil {
		logrus.Errorf("%s: obstruction line read failed: %s", r.controller.Name(), err)
		return
	}

	if obstructed, changed := r.obstruction.Sample(now, level); changed {
		logrus.Infof("%s: obstructed %t", r.controller.Name(), obstructed)
		for _, h := range r.obstructionHandlers {
			h(obstructed)
		}
	}
}
