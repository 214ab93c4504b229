package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jkaflik/garagedoor2mqtt/internal/cover/gdo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPulse = 300 * time.Millisecond
	DefaultGap   = 500 * time.Millisecond
)

// Presser emulates presses of the opener wall button on a relay. A single
// press is one pulse, a double press two pulses with a gap in between.
type Presser struct {
	name  string
	r     Relay
	pulse time.Duration
	gap   time.Duration

	l *sync.Mutex

	cancelMu             sync.Mutex
	cancelCurrentContext context.CancelFunc

	wg sync.WaitGroup
}

func NewPresser(name string, r Relay, pulse, gap time.Duration) *Presser {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	if gap <= 0 {
		gap = DefaultGap
	}

	return &Presser{name: name, r: r, pulse: pulse, gap: gap, l: &sync.Mutex{}}
}

// Handler binds the presser to a press dispatcher. Presses run in the
// background until ctx is done.
func (p *Presser) Handler(ctx context.Context) gdo.PressHandler {
	return func(press gdo.Press) {
		switch press {
		case gdo.SinglePress:
			p.Press(ctx, 1)
		case gdo.DoublePress:
			p.Press(ctx, 2)
		}
	}
}

// Press starts a sequence of count pulses. A sequence still running is
// cancelled first, its relay released before the new one starts.
func (p *Presser) Press(parent context.Context, count int) {
	ctx := p.retainContext(parent)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.l.Lock()
		defer p.l.Unlock()

		if ctx.Err() != nil {
			return
		}

		for i := 0; i < count; i++ {
			if i > 0 {
				select {
				case <-time.After(p.gap):
				case <-ctx.Done():
					logrus.Infof("%s: press canceled", p.name)
					return
				}
			}

			logrus.Debugf("%s: pulse %d/%d for %s", p.name, i+1, count, p.pulse)
			if err := p.r.EnableFor(ctx, p.pulse); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					logrus.Infof("%s: press canceled", p.name)
				} else {
					logrus.Errorf("%s: enable relay error: %s", p.name, err)
				}
				return
			}
		}
	}()
}

// Wait blocks until every started sequence is over.
func (p *Presser) Wait() {
	p.wg.Wait()
}

func (p *Presser) retainContext(parent context.Context) (ctx context.Context) {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()

	if p.cancelCurrentContext != nil {
		logrus.Debugf("%s: found previous press context, cancel", p.name)
		p.cancelCurrentContext()
	}

	ctx, p.cancelCurrentContext = context.WithCancel(parent)
	return ctx
}
