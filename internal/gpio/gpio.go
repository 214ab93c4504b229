// Package gpio requests lines of the Linux GPIO character device for the
// opener: endstop and obstruction inputs and the relay output.
package gpio

import "time"

const DefaultChip = "gpiochip0"

// InputConfig describes an input line. Levels are reported raw, polarity
// is left to the consumer.
type InputConfig struct {
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"pin"`
	PullUp bool   `yaml:"pull_up"`

	// Kernel side debounce, applied before the line event reaches us.
	Debounce time.Duration `yaml:"kernel_debounce"`
}

func (c InputConfig) chip() string {
	if c.Chip == "" {
		return DefaultChip
	}
	return c.Chip
}

// EdgeHandler is called from the line event goroutine.
type EdgeHandler func(level bool, ts time.Time)
