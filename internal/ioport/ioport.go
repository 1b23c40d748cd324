// Package ioport models the machine's port I/O and other primitives that, on real hardware, are
// single privileged instructions: IN/OUT, CLI/STI, and INVLPG. Nothing here talks to real
// hardware; the "ports" are an address space kept in memory so the rest of the kernel can be
// exercised and tested without a real PC underneath it.
package ioport

import (
	"sync"

	"github.com/pcoslab/pcos/internal/log"
)

// Port is the address of a byte/word/dword I/O port, e.g. the PIC's command and data ports.
type Port uint16

// Space is a simulated port address space, the stand-in for the CPU's IN/OUT instructions.
type Space struct {
	mu    sync.Mutex
	ports map[Port]uint32
	log   *log.Logger
}

// NewSpace creates an empty port space.
func NewSpace() *Space {
	return &Space{
		ports: make(map[Port]uint32),
		log:   log.DefaultLogger(),
	}
}

// Out8 writes a byte to a port.
func (s *Space) Out8(port Port, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[port] = uint32(val)
}

// In8 reads a byte from a port.
func (s *Space) In8(port Port) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint8(s.ports[port])
}

// Out16 writes a word to a port.
func (s *Space) Out16(port Port, val uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[port] = uint32(val)
}

// In16 reads a word from a port.
func (s *Space) In16(port Port) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(s.ports[port])
}

// Flags models the CPU's interrupt-enable flag. On real single-CPU hardware, cli/sti don't need
// to be a mutex: nothing else can run while interrupts are off. Running top-level jobs as real
// goroutines breaks that assumption, so here Cli blocks until any other open critical section
// closes, the same mutual exclusion disabling interrupts bought for free on the original
// hardware. A goroutine must not call Cli a second time before its matching Restore/Sti -- there
// is one critical section, not a re-entrant one -- and must always pass Restore the exact value
// Cli returned it.
type Flags struct {
	mu      sync.Mutex
	enabled bool
}

// NewFlags creates an interrupt-flag register with interrupts enabled, matching a freshly booted
// machine after the PIC and IDT are initialized.
func NewFlags() *Flags {
	return &Flags{enabled: true}
}

// Cli blocks until the critical section is free, disables interrupts, and returns the previous
// state, to be handed back to Restore or Sti.
func (f *Flags) Cli() (prev bool) {
	f.mu.Lock()

	prev = f.enabled
	f.enabled = false

	return prev
}

// Sti unconditionally enables interrupts, reopening the critical section Cli closed.
func (f *Flags) Sti() (prev bool) {
	prev = f.enabled
	f.enabled = true

	f.mu.Unlock()

	return prev
}

// Restore sets the flag back to a previously observed state and reopens the critical section Cli
// closed, whatever the value of prev.
func (f *Flags) Restore(prev bool) {
	f.enabled = prev

	f.mu.Unlock()
}

// FlushTLB models the INVLPG/CR3-reload side effect of switching page directories. There is no
// real TLB to invalidate, so this exists only so call sites in internal/mm read the way the
// original paging.c does and so a future backend (e.g. one that memoizes address translations)
// has an obvious hook.
func FlushTLB() {}
