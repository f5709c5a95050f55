package scenario

import "fmt"

// VU is the per-virtual-user context of the scenario.
//
// The driver creates one VU per virtual user and runs that user's iterations
// serially, so the counter needs no synchronization. Nothing in a VU is shared
// with other virtual users.
type VU struct {
	index   int
	counter uint64
}

// NewVU returns the context for the virtual user with the given index.
func NewVU(index int) *VU {
	return &VU{index: index}
}

// Index returns the virtual user index supplied by the driver.
func (v *VU) Index() int {
	return v.index
}

// Iterations returns how many identifiers this VU has handed out.
func (v *VU) Iterations() uint64 {
	return v.counter
}

// NextID returns the next iteration identifier, "<prefix>-<index>-<counter>",
// and advances the counter. The first identifier of a VU uses counter 0.
func (v *VU) NextID(prefix string) string {
	id := fmt.Sprintf("%s-%d-%d", prefix, v.index, v.counter)
	v.counter++
	return id
}
