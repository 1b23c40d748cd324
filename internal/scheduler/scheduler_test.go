package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pcoslab/pcos/internal/scheduler"
)

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	done     chan struct{}
}

func newFakeExecutor(n int) *fakeExecutor {
	return &fakeExecutor{done: make(chan struct{}, n)}
}

func (f *fakeExecutor) Execute(_ context.Context, command string, _ int, _ bool) (int32, error) {
	f.mu.Lock()
	f.executed = append(f.executed, command)
	f.mu.Unlock()

	f.done <- struct{}{}

	return 0, nil
}

func TestEnqueuePromotesOnTick(t *testing.T) {
	s := scheduler.New()
	exec := newFakeExecutor(1)
	s.SetExecutor(exec)

	if err := s.Enqueue("shell", 0, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if s.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", s.PendingCount())
	}

	s.OnTick(context.Background())

	select {
	case <-exec.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to run")
	}

	if s.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", s.PendingCount())
	}
}

func TestEnqueueFullPendingTable(t *testing.T) {
	s := scheduler.New()

	for i := 0; i < scheduler.MaxJobs; i++ {
		if err := s.Enqueue("noop", 0, false); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if err := s.Enqueue("noop", 0, false); err == nil {
		t.Fatal("expected ErrPendingFull")
	}
}

func TestOnTickRespectsRunningCap(t *testing.T) {
	s := scheduler.New()
	// Unbuffered: every promoted job blocks in Execute, so it keeps its running slot.
	exec := newFakeExecutor(0)
	s.SetExecutor(exec)

	for i := 0; i < scheduler.MaxJobs; i++ {
		if err := s.Enqueue("job", 0, false); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	s.OnTick(context.Background())

	// The pending table holds at most MaxJobs, so the ninth job is queued once the first
	// eight have been promoted.
	if err := s.Enqueue("job", 0, false); err != nil {
		t.Fatalf("enqueue %d: %v", scheduler.MaxJobs, err)
	}

	s.OnTick(context.Background())

	if s.RunningCount() > scheduler.MaxJobs {
		t.Fatalf("running = %d, want <= %d", s.RunningCount(), scheduler.MaxJobs)
	}

	if s.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 left over", s.PendingCount())
	}
}
