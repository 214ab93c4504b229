//go:build !linux

package gpio

import "github.com/pkg/errors"

var ErrNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

type Input struct{}

func WatchInput(InputConfig, EdgeHandler) (*Input, error) {
	return nil, ErrNotSupported
}

func CountFalling(InputConfig, func()) (*Input, error) {
	return nil, ErrNotSupported
}

func (i *Input) Value() (bool, error) {
	return false, ErrNotSupported
}

func (i *Input) Close() error {
	return nil
}

type Output struct{}

func NewOutput(string, int, bool) (*Output, error) {
	return nil, ErrNotSupported
}

func (o *Output) High() error {
	return ErrNotSupported
}

func (o *Output) Low() error {
	return ErrNotSupported
}

func (o *Output) Close() error {
	return nil
}
