//go:build linux

package gpio

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

type Input struct {
	line *gpiocdev.Line
}

// WatchInput requests an input line reporting both edges to h.
func WatchInput(cfg InputConfig, h EdgeHandler) (*Input, error) {
	return requestInput(cfg, gpiocdev.WithBothEdges, func(evt gpiocdev.LineEvent) {
		h(evt.Type == gpiocdev.LineEventRisingEdge, time.Now())
	})
}

// CountFalling requests an input line calling h on every falling edge.
func CountFalling(cfg InputConfig, h func()) (*Input, error) {
	return requestInput(cfg, gpiocdev.WithFallingEdge, func(gpiocdev.LineEvent) {
		h()
	})
}

func requestInput(cfg InputConfig, edge gpiocdev.LineReqOption, h func(gpiocdev.LineEvent)) (*Input, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		edge,
		gpiocdev.WithEventHandler(h),
	}
	if cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}

	line, err := gpiocdev.RequestLine(cfg.chip(), cfg.Offset, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "request input %s:%d", cfg.chip(), cfg.Offset)
	}

	return &Input{line: line}, nil
}

// Value reads the current raw level.
func (i *Input) Value() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "read line %d", i.line.Offset())
	}
	return v == 1, nil
}

func (i *Input) Close() error {
	return i.line.Close()
}

// Output is an output line usable as a relay pin.
type Output struct {
	line *gpiocdev.Line
}

func NewOutput(chip string, offset int, high bool) (*Output, error) {
	if chip == "" {
		chip = DefaultChip
	}

	v := 0
	if high {
		v = 1
	}

	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(v))
	if err != nil {
		return nil, errors.Wrapf(err, "request output %s:%d", chip, offset)
	}

	return &Output{line: line}, nil
}

func (o *Output) High() error {
	return o.line.SetValue(1)
}

func (o *Output) Low() error {
	return o.line.SetValue(0)
}

func (o *Output) Close() error {
	return o.line.Close()
}
