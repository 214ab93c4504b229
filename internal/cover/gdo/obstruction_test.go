package gdo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pulse(o *Obstruction, n int) {
	for i := 0; i < n; i++ {
		o.Pulse()
	}
}

func TestObstructionClearWithPulses(t *testing.T) {
	o := NewObstruction(at(0))

	pulse(o, 5)
	obstructed, changed := o.Sample(at(60), true)
	assert.False(t, obstructed)
	assert.True(t, changed)

	pulse(o, 7)
	obstructed, changed = o.Sample(at(120), true)
	assert.False(t, obstructed)
	assert.False(t, changed)
}

func TestObstructionWaitsForCheckPeriod(t *testing.T) {
	o := NewObstruction(at(0))

	pulse(o, 5)
	_, changed := o.Sample(at(50), true)
	assert.False(t, changed)

	// pulses keep accumulating until the period is over
	_, changed = o.Sample(at(51), true)
	assert.True(t, changed)
}

func TestObstructionSteadyHigh(t *testing.T) {
	o := NewObstruction(at(0))

	pulse(o, 5)
	o.Sample(at(60), true)

	changes := 0
	for ms := 120; ms <= 700; ms += 60 {
		if _, changed := o.Sample(at(ms), true); changed {
			changes++
		}
	}
	assert.Zero(t, changes)
	assert.False(t, o.Obstructed())

	obstructed, changed := o.Sample(at(760), true)
	assert.True(t, obstructed)
	assert.True(t, changed)
}

func TestObstructionAsleep(t *testing.T) {
	o := NewObstruction(at(0))

	pulse(o, 5)
	o.Sample(at(60), true)

	for ms := 120; ms <= 2000; ms += 60 {
		_, changed := o.Sample(at(ms), false)
		assert.False(t, changed)
	}

	// waking up, the line is high without pulses for a moment
	obstructed, changed := o.Sample(at(2100), true)
	assert.False(t, obstructed)
	assert.False(t, changed)

	pulse(o, 6)
	obstructed, changed = o.Sample(at(2200), true)
	assert.False(t, obstructed)
	assert.False(t, changed)
}

func TestObstructionFewPulsesAreIgnored(t *testing.T) {
	o := NewObstruction(at(0))

	pulse(o, 2)
	obstructed, changed := o.Sample(at(60), true)
	assert.False(t, obstructed)
	assert.False(t, changed)
}
