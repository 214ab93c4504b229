package gdo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimatorUpdate(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		dir      MotionState
		elapsed  time.Duration
		expected float64
	}{
		{"opening halfway", 0, MotionOpening, 5 * time.Second, 0.5},
		{"opening full", 0, MotionOpening, 10 * time.Second, 1},
		{"opening past the end is clamped", 0.5, MotionOpening, 20 * time.Second, 1},
		{"closing a quarter", 1, MotionClosing, 2 * time.Second, 0.75},
		{"closing full", 1, MotionClosing, 8 * time.Second, 0},
		{"closing past the end is clamped", 0.2, MotionClosing, 8 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(10*time.Second, 8*time.Second, tt.start)
			assert.True(t, e.StartMotion(tt.dir, t0))
			assert.InDelta(t, tt.expected, e.Update(t0.Add(tt.elapsed)), 1e-9)
		})
	}
}

func TestEstimatorStartMotionSameDirection(t *testing.T) {
	e := NewEstimator(10*time.Second, 8*time.Second, 0)
	assert.True(t, e.StartMotion(MotionOpening, t0))
	assert.False(t, e.StartMotion(MotionOpening, t0.Add(2*time.Second)))

	// the first start time is kept
	assert.InDelta(t, 0.4, e.Update(t0.Add(4*time.Second)), 1e-9)
}

func TestEstimatorReverse(t *testing.T) {
	e := NewEstimator(10*time.Second, 8*time.Second, 0)
	e.StartMotion(MotionOpening, t0)
	assert.True(t, e.StartMotion(MotionClosing, t0.Add(5*time.Second)))
	assert.InDelta(t, 0.5, e.Position(), 1e-9)
	assert.InDelta(t, 0.25, e.Update(t0.Add(7*time.Second)), 1e-9)
}

func TestEstimatorMonotonicWhileOpening(t *testing.T) {
	e := NewEstimator(10*time.Second, 8*time.Second, 0)
	e.StartMotion(MotionOpening, t0)

	prev := e.Position()
	for ms := 0; ms <= 12000; ms += 16 {
		pos := e.Update(at(ms))
		assert.GreaterOrEqual(t, pos, prev)
		assert.LessOrEqual(t, pos, 1.0)
		prev = pos
	}
	assert.Equal(t, 1.0, prev)
}

func TestEstimatorOnEndstop(t *testing.T) {
	e := NewEstimator(10*time.Second, 8*time.Second, 0)
	e.StartMotion(MotionOpening, t0)
	e.Update(t0.Add(time.Second))

	e.OnEndstop(OpenEndstop)
	assert.Equal(t, 1.0, e.Position())
	assert.Equal(t, MotionIdle, e.Motion())

	e.StartMotion(MotionClosing, t0.Add(2*time.Second))
	e.OnEndstop(CloseEndstop)
	assert.Equal(t, 0.0, e.Position())
	assert.Equal(t, MotionIdle, e.Motion())
}

func TestEstimatorHalt(t *testing.T) {
	e := NewEstimator(10*time.Second, 8*time.Second, 0)
	e.StartMotion(MotionOpening, t0)

	assert.InDelta(t, 0.3, e.Halt(t0.Add(3*time.Second)), 1e-9)
	assert.Equal(t, MotionIdle, e.Motion())
	assert.InDelta(t, 0.3, e.Update(t0.Add(9*time.Second)), 1e-9)
	assert.Equal(t, time.Duration(0), e.Elapsed(t0.Add(9*time.Second)))
}
