package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Relay closes a contact for a given duration. EnableFor blocks until the
// contact is released again.
type Relay interface {
	EnableFor(ctx context.Context, duration time.Duration) error
	IsEnabled() bool
}

// PoolProxy limits how many relays sharing the same pool are enabled at
// once, e.g. to stay within the power budget of a relay board.
type PoolProxy struct {
	r Relay
	c chan struct{}
}

func NewPoolProxy(r Relay, pool chan struct{}) *PoolProxy {
	return &PoolProxy{r: r, c: pool}
}

func (p *PoolProxy) EnableFor(ctx context.Context, duration time.Duration) error {
	select {
	case p.c <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		<-p.c
	}()

	return p.r.EnableFor(ctx, duration)
}

func (p *PoolProxy) IsEnabled() bool {
	return p.r.IsEnabled()
}

// Dumb is a relay without hardware behind it. It only logs, which is handy
// for a dry run against a real broker.
type Dumb struct {
	Name string

	enabled atomic.Bool
	pulses  atomic.Int32
}

func (r *Dumb) EnableFor(ctx context.Context, duration time.Duration) error {
	r.enabled.Store(true)
	defer r.enabled.Store(false)
	r.pulses.Add(1)

	logrus.Warnf("%s: dumb relay closed for %s", r.Name, duration.String())

	select {
	case <-time.After(duration):
		logrus.Warnf("%s: dumb relay released", r.Name)
		return nil
	case <-ctx.Done():
		logrus.Warnf("%s: dumb relay released early", r.Name)
		return ctx.Err()
	}
}

func (r *Dumb) IsEnabled() bool {
	return r.enabled.Load()
}

// Pulses returns how many times the relay has been enabled.
func (r *Dumb) Pulses() int {
	return int(r.pulses.Load())
}
