package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{}
	p.device = device
	p.pin = pin
	err = p.device.PinMode(pin, mcp23017.OUTPUT)
	return p, err
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// Wired is a relay module driven by a single output pin. Most modules are
// active low, NormalClosed flips that.
type Wired struct {
	Pin          SetPin
	NormalClosed bool

	enabled atomic.Bool
}

// Release puts the pin in its idle level. Call it once at startup so the
// opener isn't pressed by an undefined pin state.
func (p *Wired) Release() error {
	return p.disable()
}

func (p *Wired) EnableFor(ctx context.Context, duration time.Duration) error {
	if err := p.enable(); err != nil {
		return err
	}
	defer func() {
		if err := p.disable(); err != nil {
			logrus.Errorf("wired relay release failed: %s", err)
		}
	}()

	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		logrus.Debug("wired relay released early")
		return ctx.Err()
	}
}

func (p *Wired) IsEnabled() bool {
	return p.enabled.Load()
}

func (p *Wired) enable() error {
	p.enabled.Store(true)
	if !p.NormalClosed {
		return p.Pin.Low()
	}

	return p.Pin.High()
}

func (p *Wired) disable() error {
	p.enabled.Store(false)
	if !p.NormalClosed {
		return p.Pin.High()
	}

	return p.Pin.Low()
}
