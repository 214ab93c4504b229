package relay

import (
	"context"
	"testing"
	"time"

	"github.com/jkaflik/garagedoor2mqtt/internal/cover/gdo"
	"github.com/stretchr/testify/assert"
)

func TestPresserSinglePress(t *testing.T) {
	r := &Dumb{Name: "garage"}
	p := NewPresser("garage", r, time.Millisecond*5, time.Millisecond*5)

	start := time.Now()
	p.Press(context.Background(), 1)
	p.Wait()

	assert.Equal(t, 1, r.Pulses())
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond*5)
}

func TestPresserDoublePress(t *testing.T) {
	r := &Dumb{Name: "garage"}
	p := NewPresser("garage", r, time.Millisecond*5, time.Millisecond*10)

	d := gdo.NewDispatcher()
	d.BindAll(p.Handler(context.Background()))

	start := time.Now()
	d.DoublePress()
	p.Wait()

	assert.Equal(t, 2, r.Pulses())
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond*20)
}

func TestPresserCancelsPreviousSequence(t *testing.T) {
	r := &Dumb{Name: "garage"}
	p := NewPresser("garage", r, time.Millisecond*200, time.Millisecond*200)

	start := time.Now()
	p.Press(context.Background(), 2)
	time.Sleep(time.Millisecond * 20)
	p.Press(context.Background(), 1)
	p.Wait()

	// first pulse of the double press is cut short, its second one never happens
	assert.Equal(t, 2, r.Pulses())
	assert.Less(t, time.Since(start), time.Millisecond*590)
}

func TestNewPresserDefaults(t *testing.T) {
	p := NewPresser("garage", &Dumb{}, 0, 0)
	assert.Equal(t, DefaultPulse, p.pulse)
	assert.Equal(t, DefaultGap, p.gap)
}
