// Package scheduler tracks the top-level jobs a boot sequence or a run syscall has started: one
// goroutine per job, promoted from a pending queue onto a fixed-size running table as slots free
// up. It does not preempt mid-instruction -- there's no instruction stream to preempt without an
// ISA interpreter -- so the unit of scheduling here is a whole job's lifetime, which is enough to
// drive the terminal-binding and pending-table invariants the rest of the kernel cares about.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/pcoslab/pcos/internal/log"
)

// MaxJobs bounds both the running and pending tables, matching the original kernel's fixed
// size-8 arrays.
const MaxJobs = 8

// ErrPendingFull is returned by Enqueue when the pending table has no room.
var ErrPendingFull = errors.New("scheduler: pending table full")

// Executor runs one top-level job to completion. internal/syscall implements this; the
// interface lives here, not there, so this package doesn't import its caller.
type Executor interface {
	Execute(ctx context.Context, command string, terminalID int, haltable bool) (status int32, err error)
}

type runningSlot struct {
	occupied   bool
	terminalID int
}

type pendingJob struct {
	command    string
	terminalID int
	haltable   bool
}

// Scheduler owns the running/pending tables and the goroutine that promotes one into the other.
type Scheduler struct {
	mu      sync.Mutex
	running [MaxJobs]runningSlot
	pending []pendingJob

	exec Executor
	log  *log.Logger
}

// New creates an empty scheduler. SetExecutor must be called before OnTick does anything useful;
// the two-phase construction breaks the import cycle between this package and the syscall layer
// that implements Executor.
func New() *Scheduler {
	return &Scheduler{log: log.DefaultLogger()}
}

// SetExecutor installs the executor jobs are dispatched through.
func (s *Scheduler) SetExecutor(exec Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec = exec
}

// Enqueue adds a pending job for terminalID (or process.HeadlessTerminal), matching the run
// syscall's "enqueue and return immediately" contract. haltable is false only for the root
// shells booted onto each terminal, which respawn instead of exiting for good.
func (s *Scheduler) Enqueue(command string, terminalID int, haltable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= MaxJobs {
		return ErrPendingFull
	}

	s.pending = append(s.pending, pendingJob{command: command, terminalID: terminalID, haltable: haltable})

	return nil
}

// OnTick runs on every PIT tick. It promotes as many pending jobs as there are free running
// slots, each onto its own goroutine, rather than calling into the executor synchronously --
// the original kernel's execute_pending_job was reentrant from the timer handler itself, which
// could nest an unbounded number of stack frames. Returning a new running slot via go avoids
// that by never calling back into the handler's own stack.
func (s *Scheduler) OnTick(ctx context.Context) {
	s.mu.Lock()

	for len(s.pending) > 0 {
		slot := s.freeSlot()
		if slot < 0 {
			break
		}

		job := s.pending[0]
		s.pending = s.pending[1:]
		s.running[slot] = runningSlot{occupied: true, terminalID: job.terminalID}

		go s.runJob(ctx, slot, job)
	}

	s.mu.Unlock()
}

// freeSlot returns the index of an unoccupied running slot, or -1. Caller must hold s.mu.
func (s *Scheduler) freeSlot() int {
	for i := range s.running {
		if !s.running[i].occupied {
			return i
		}
	}

	return -1
}

func (s *Scheduler) runJob(ctx context.Context, slot int, job pendingJob) {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()

	if exec == nil {
		s.log.Error("scheduler: no executor installed, dropping job", "command", job.command)
		s.clearSlot(slot)

		return
	}

	status, err := exec.Execute(ctx, job.command, job.terminalID, job.haltable)
	if err != nil {
		s.log.Error("scheduler: job failed", "command", job.command, "err", err)
	} else {
		s.log.Debug("scheduler: job exited", "command", job.command, "status", status)
	}

	s.clearSlot(slot)
}

func (s *Scheduler) clearSlot(slot int) {
	s.mu.Lock()
	s.running[slot] = runningSlot{}
	s.mu.Unlock()
}

// RunningCount returns how many running slots are currently occupied.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, slot := range s.running {
		if slot.occupied {
			n++
		}
	}

	return n
}

// PendingCount returns how many jobs are waiting in the pending queue.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}
