package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVU_NextID(t *testing.T) {
	vu := NewVU(3)
	assert.Equal(t, 3, vu.Index())

	assert.Equal(t, "pr-load-3-0", vu.NextID("pr-load"))
	assert.Equal(t, "pr-load-3-1", vu.NextID("pr-load"))
	assert.Equal(t, "pr-load-3-2", vu.NextID("pr-load"))
	assert.Equal(t, uint64(3), vu.Iterations())
}
