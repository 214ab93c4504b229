package cover

import (
	"context"
)

type State string

const (
	OpenState    State = "open"
	ClosedState  State = "closed"
	OpeningState State = "opening"
	ClosingState State = "closing"
	StoppedState State = "stopped"
)

const (
	ClosedPosition = 0.0
	OpenPosition   = 1.0
)

// UpdateHandler receives the cover state and its position in [0, 1].
type UpdateHandler func(state State, position float64)

type Cover interface {
	Name() string

	OnUpdate(h UpdateHandler)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	SetPosition(ctx context.Context, position float64) error
}

// StatelessCover is a cover that can't tell its position after a restart
// and accepts a best guess from outside.
type StatelessCover interface {
	Cover

	ResetPosition(ctx context.Context, position float64) error
}
