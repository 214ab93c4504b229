package gdo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jkaflik/garagedoor2mqtt/internal/cover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type runnerHarness struct {
	runner  *Runner
	clock   *fakeClock
	ticks   chan time.Time
	updates chan update
	cancel  context.CancelFunc
	done    chan error
}

func startRunner(t *testing.T, cfg Config) *runnerHarness {
	t.Helper()

	c, _ := newController(t, cfg)
	h := &runnerHarness{
		runner:  NewRunner(c, time.Millisecond),
		clock:   &fakeClock{now: at(0)},
		ticks:   make(chan time.Time),
		updates: make(chan update, 32),
		done:    make(chan error, 1),
	}
	h.runner.SetClock(h.clock.Now)
	h.runner.OnUpdate(func(state cover.State, position float64) {
		h.updates <- update{state, position}
	})

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() {
		h.done <- h.runner.run(ctx, h.ticks)
	}()

	t.Cleanup(h.cancel)
	return h
}

func (h *runnerHarness) next(t *testing.T) update {
	t.Helper()

	select {
	case u := <-h.updates:
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return update{}
}

func (h *runnerHarness) tick(ms int) {
	h.clock.Set(at(ms))
	h.ticks <- at(ms)
}

func TestRunnerAppliesCommandsAndTicks(t *testing.T) {
	h := startRunner(t, Config{})
	ctx := context.Background()
	assert.Equal(t, update{cover.StoppedState, UnknownPosition}, h.next(t))

	require.NoError(t, h.runner.ResetPosition(ctx, 0))
	assert.Equal(t, update{cover.ClosedState, 0}, h.next(t))

	require.NoError(t, h.runner.Open(ctx))
	assert.Equal(t, update{cover.OpeningState, 0}, h.next(t))

	h.tick(10000)
	assert.Equal(t, update{cover.OpenState, 1}, h.next(t))

	require.NoError(t, h.runner.Toggle(ctx))
	assert.Equal(t, cover.ClosingState, h.next(t).state)

	require.NoError(t, h.runner.Stop(ctx))
	assert.Equal(t, cover.StoppedState, h.next(t).state)

	require.NoError(t, h.runner.SetPosition(ctx, 0))
	assert.Equal(t, cover.ClosingState, h.next(t).state)

	require.NoError(t, h.runner.Close(ctx))
	h.tick(18000)
	assert.Equal(t, update{cover.ClosedState, 0}, h.next(t))

	h.cancel()
	assert.ErrorIs(t, <-h.done, context.Canceled)
}

func TestRunnerFeedsEdges(t *testing.T) {
	h := startRunner(t, Config{
		OpenEndstop:  seeded(OpenEndstop, false),
		CloseEndstop: seeded(CloseEndstop, true),
	})

	assert.Equal(t, update{cover.ClosedState, 0}, h.next(t))

	h.runner.Edge(Edge{Source: CloseEndstop, Level: false, Time: at(0)})
	h.tick(50)
	assert.Equal(t, cover.OpeningState, h.next(t).state)

	h.runner.Edge(Edge{Source: OpenEndstop, Level: true, Time: at(9000)})
	h.tick(9050)
	assert.Equal(t, update{cover.OpenState, 1}, h.next(t))
}

func TestRunnerPublishesInitialState(t *testing.T) {
	h := startRunner(t, Config{
		OpenEndstop:  seeded(OpenEndstop, true),
		CloseEndstop: seeded(CloseEndstop, false),
	})

	assert.Equal(t, update{cover.OpenState, 1}, h.next(t))
}

func TestRunnerIgnoresEndstopSpike(t *testing.T) {
	h := startRunner(t, Config{
		OpenEndstop:  seeded(OpenEndstop, false),
		CloseEndstop: seeded(CloseEndstop, true),
	})
	assert.Equal(t, update{cover.ClosedState, 0}, h.next(t))

	h.runner.Edge(Edge{Source: CloseEndstop, Level: false, Time: at(0)})
	h.runner.Edge(Edge{Source: CloseEndstop, Level: true, Time: at(10)})
	h.tick(100)
	h.tick(200)

	select {
	case u := <-h.updates:
		t.Fatalf("unexpected update %v", u)
	default:
	}
}

func TestRunnerSamplesObstruction(t *testing.T) {
	c, _ := newController(t, Config{})
	r := NewRunner(c, time.Millisecond)
	clock := &fakeClock{now: at(0)}
	r.SetClock(clock.Now)

	o := NewObstruction(at(0))
	r.AttachObstruction(o, func() (bool, error) { return true, nil })

	var got []bool
	r.OnObstruction(func(obstructed bool) { got = append(got, obstructed) })

	pulse(o, 5)
	clock.Set(at(60))
	r.loop()

	clock.Set(at(900))
	r.loop()

	assert.Equal(t, []bool{false, true}, got)
}

func TestRunnerSubmitHonoursContext(t *testing.T) {
	c, _ := newController(t, Config{})
	r := NewRunner(c, 0)
	assert.Equal(t, DefaultTick, r.tick)

	for i := 0; i < cap(r.commands); i++ {
		require.NoError(t, r.Stop(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Open(ctx), context.DeadlineExceeded)
}
