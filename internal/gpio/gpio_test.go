package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputConfigChip(t *testing.T) {
	assert.Equal(t, DefaultChip, InputConfig{}.chip())
	assert.Equal(t, "gpiochip4", InputConfig{Chip: "gpiochip4"}.chip())
}
