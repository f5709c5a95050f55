package performance_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
)

func countingIteration(counter *atomic.Int64) performance.IterationFunc {
	return func(ctx context.Context) error {
		counter.Add(1)
		return ctx.Err()
	}
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUStateStopped, "stopped"},
		{performance.VUState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VUState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestVirtualUser_RunIteration(t *testing.T) {
	var calls atomic.Int64
	vu := performance.NewVirtualUser(1, countingIteration(&calls))

	if vu.GetState() != performance.VUStateIdle {
		t.Fatalf("initial state = %v, want idle", vu.GetState())
	}

	for i := 0; i < 3; i++ {
		if err := vu.RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	if calls.Load() != 3 {
		t.Errorf("iteration func called %d times, want 3", calls.Load())
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("state after iteration = %v, want idle", vu.GetState())
	}
}

func TestVirtualUser_RunIteration_PropagatesCancellation(t *testing.T) {
	var calls atomic.Int64
	vu := performance.NewVirtualUser(1, countingIteration(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := vu.RunIteration(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunIteration() error = %v, want context.Canceled", err)
	}
}

func TestVirtualUser_StopDuringIterationIsKept(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	vu := performance.NewVirtualUser(1, func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- vu.RunIteration(context.Background()) }()

	<-entered
	if vu.GetState() != performance.VUStateRunning {
		t.Fatalf("state during iteration = %v, want running", vu.GetState())
	}

	vu.RequestStop()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("state after stopped iteration = %v, want stopping", vu.GetState())
	}

	if err := vu.RunIteration(context.Background()); err == nil {
		t.Error("RunIteration() on a stopping VU should fail")
	}
}

func TestVirtualUser_RequestStopAndMarkStopped(t *testing.T) {
	vu := performance.NewVirtualUser(1, func(context.Context) error { return nil })

	vu.RequestStop()
	vu.RequestStop() // second call must not panic

	select {
	case <-vu.StopRequested():
	default:
		t.Error("StopRequested() should be closed after RequestStop")
	}

	if vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() should time out before MarkStopped")
	}

	vu.MarkStopped()
	vu.MarkStopped()

	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("state = %v, want stopped", vu.GetState())
	}
	if !vu.WaitForStop(time.Second) {
		t.Error("WaitForStop() should return true after MarkStopped")
	}
}

func TestVirtualUser_MarkStoppedWithoutRequest(t *testing.T) {
	vu := performance.NewVirtualUser(1, func(context.Context) error { return nil })
	vu.MarkStopped()

	select {
	case <-vu.StopRequested():
	default:
		t.Error("StopRequested() should be closed once the VU is stopped")
	}

	// Stopping an already stopped VU is a no-op.
	vu.RequestStop()
	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("state = %v, want stopped", vu.GetState())
	}
}
