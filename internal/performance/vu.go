// Package performance runs iteration functions on a pool of virtual users.
package performance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running an iteration.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop after its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited. A stopped VU may be reused.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IterationFunc runs one iteration for a VU. A non-nil error means the
// iteration was cut short by ctx.
type IterationFunc func(ctx context.Context) error

// VirtualUser is a single simulated user executing iterations sequentially.
//
// The iteration function is bound once, when the VU is created, so any state
// it closes over (such as an identifier counter) survives when the VU is
// stopped and later reactivated.
type VirtualUser struct {
	// ID is unique for the scheduler's lifetime and starts at 1.
	ID int

	iterate IterationFunc

	state atomic.Int32

	// stopCh and doneCh are replaced on reactivation
	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewVirtualUser creates a new idle Virtual User.
func NewVirtualUser(id int, iterate IterationFunc) *VirtualUser {
	return &VirtualUser{
		ID:      id,
		iterate: iterate,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// RunIteration executes a single iteration.
//
// A stop request that arrives mid-iteration is kept: the VU stays in the
// stopping state when the iteration returns.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return fmt.Errorf("VU %d is %s", vu.ID, vu.GetState())
	}

	err := vu.iterate(ctx)

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return err
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// StopRequested returns a channel closed once RequestStop has been called.
func (vu *VirtualUser) StopRequested() <-chan struct{} {
	vu.mu.Lock()
	defer vu.mu.Unlock()
	return vu.stopCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	vu.mu.Lock()
	done := vu.doneCh
	vu.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called by the scheduler when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if prev := VUState(vu.state.Swap(int32(VUStateStopped))); prev != VUStateStopping && prev != VUStateStopped {
		close(vu.stopCh)
	}
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}

// reactivate returns a stopped VU to the idle state with fresh signals.
func (vu *VirtualUser) reactivate() bool {
	vu.mu.Lock()
	defer vu.mu.Unlock()

	if vu.GetState() != VUStateStopped {
		return false
	}
	vu.stopCh = make(chan struct{})
	vu.doneCh = make(chan struct{})
	vu.state.Store(int32(VUStateIdle))
	return true
}
