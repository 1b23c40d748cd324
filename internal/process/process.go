// Package process implements the process control block and the fixed-size table of live
// processes, including the free-pid pool processes are allocated from and returned to.
package process

import (
	"container/heap"
	"errors"

	"github.com/pcoslab/pcos/internal/file"
)

// MaxProcesses is the number of PCB slots and the bound on the free-pid pool.
const MaxProcesses = 8

// NumFiles is the size of a process' file descriptor table.
const NumFiles = 8

// HeadlessTerminal is the sentinel terminal id meaning "not bound to any visible terminal".
const HeadlessTerminal = -1

// Standard file descriptor indices, always present in a live process.
const (
	FDStdin  = 0
	FDStdout = 1
)

// ErrNoFreePID is returned when the free-pid pool is exhausted.
var ErrNoFreePID = errors.New("process: no free pid")

// PCB is one process' control block: everything execute, halt, and the syscall layer need to
// know about a running program. It mirrors the original kernel's PCB field-for-field, minus the
// saved-stack-pointer bookkeeping a Go goroutine doesn't need.
type PCB struct {
	PID      int
	ParentID int // Equal to PID for a root process.

	Argv string

	Files [NumFiles]file.Descriptor

	RTCRate uint32
	Crashed bool

	TerminalID int // HeadlessTerminal if not bound to a visible terminal.
	Haltable   bool

	// ChildStatus is where a running child's halt writes its exit status before control
	// returns to this PCB's execute frame.
	ChildStatus int32
}

// pidHeap is a container/heap min-heap of available process ids. Unlike the original kernel's
// fixed 8-slot array (padded with an INT_MAX sentinel so heap_insert always has room), this is a
// plain growable slice: there's no fixed backing array to pad since Go slices already resize, so
// no sentinel value is needed.
type pidHeap []int

func (h pidHeap) Len() int            { return len(h) }
func (h pidHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h pidHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pidHeap) Push(x interface{}) { *h = append(*h, x.(int)) }

func (h *pidHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]

	return v
}

// Table is the fixed PCB arena plus the free-pid pool processes are allocated pids from.
type Table struct {
	arena [MaxProcesses]*PCB
	free  pidHeap
}

// New creates a table with all MaxProcesses pids free, in ascending order -- invariant 1's
// "initial multiset {0,...,7}".
func New() *Table {
	t := &Table{free: make(pidHeap, MaxProcesses)}
	for i := range t.free {
		t.free[i] = i
	}

	heap.Init(&t.free)

	return t
}

// Alloc pops the lowest free pid, installs a new PCB for it, and returns the PCB. It fails with
// ErrNoFreePID when the pool is exhausted, matching execute's -2 return.
func (t *Table) Alloc(parentID int) (*PCB, error) {
	if t.free.Len() == 0 {
		return nil, ErrNoFreePID
	}

	pid := heap.Pop(&t.free).(int)

	pcb := &PCB{
		PID:        pid,
		ParentID:   parentID,
		TerminalID: HeadlessTerminal,
	}
	pcb.Files[FDStdin] = file.Descriptor{Present: true}
	pcb.Files[FDStdout] = file.Descriptor{Present: true}

	t.arena[pid] = pcb

	return pcb, nil
}

// Free releases pid back onto the free-pid pool and clears its slot, matching halt's teardown:
// all fds dropped, pid pushed back onto the heap.
func (t *Table) Free(pid int) {
	if pid < 0 || pid >= MaxProcesses || t.arena[pid] == nil {
		return
	}

	t.arena[pid] = nil
	heap.Push(&t.free, pid)
}

// Get returns the PCB for pid, or ok=false if pid has no live process.
func (t *Table) Get(pid int) (pcb *PCB, ok bool) {
	if pid < 0 || pid >= MaxProcesses {
		return nil, false
	}

	pcb = t.arena[pid]

	return pcb, pcb != nil
}

// Live reports whether pid currently has a PCB -- invariant 1's existence test.
func (t *Table) Live(pid int) bool {
	_, ok := t.Get(pid)
	return ok
}

// FreeCount returns how many pids remain in the free pool.
func (t *Table) FreeCount() int {
	return t.free.Len()
}
