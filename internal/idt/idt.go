// Package idt models the interrupt descriptor table: 256 gates, a registry of handler functions
// indexed by vector, and the dispatch logic a hardware stub would otherwise provide -- building
// the diagnostic frame for CPU exceptions, routing IRQs through the PIC, and hosting the single
// system-call gate.
package idt

import (
	"errors"
	"fmt"

	"github.com/pcoslab/pcos/internal/log"
	"github.com/pcoslab/pcos/internal/pic"
)

// NumVectors is the number of IDT slots: 32 CPU exceptions, the cascade's IRQ lines, the
// syscall gate, and everything else left unused.
const NumVectors = 256

// Reserved vector ranges.
const (
	ExceptionBase = 0
	ExceptionMax  = 31
	IRQBase       = 32
	IRQMax        = 46
	SyscallVector = 128
)

// GateType distinguishes trap gates (used for exceptions and the syscall gate, which do not
// automatically mask further interrupts) from interrupt gates (used for IRQs).
type GateType uint8

const (
	GateTrap GateType = iota
	GateInterrupt
)

// Privilege is the descriptor privilege level required of the caller.
type Privilege uint8

const (
	PrivilegeKernel Privilege = 0
	PrivilegeUser   Privilege = 3
)

// HandlerFunc is a registered handler. CPU exception handlers and the syscall handler receive the
// trapped Frame; IRQ handlers are called with a nil Frame since no CPU state is captured for a
// hardware interrupt in this model.
type HandlerFunc func(frame *Frame) error

// Gate is one IDT slot.
type Gate struct {
	Present bool
	DPL     Privilege
	Type    GateType
	Handler HandlerFunc
}

// Frame is the diagnostic frame a CPU exception stub builds before calling do_exception: the
// saved segment/stack/flags/instruction pointer, an optional hardware error code, and the
// (bit-inverted on the wire, un-inverted here) vector.
type Frame struct {
	SS        uint32
	ESP       uint32
	EFLAGS    uint32
	CS        uint32
	EIP       uint32
	ErrorCode uint32
	HasError  bool
	Vector    uint8
	UserMode  bool

	// Result carries a system call's return value back out of the gate. Real hardware returns
	// this in EAX; there's no register file here, so the handler writes it directly.
	Result int32

	// Payload carries a trapped call's arguments for the gate registered at SyscallVector.
	// Real hardware passes these in EBX/ECX/EDX or on the user stack; there's no flat address
	// space here for them to live in, so the registering package stashes and type-asserts its
	// own argument bundle through this field instead. CPU exception and IRQ handlers never
	// read it.
	Payload any
}

// ExceptionKind classifies a CPU exception the way the Intel manual does.
type ExceptionKind uint8

const (
	KindFault ExceptionKind = iota
	KindTrap
	KindInterrupt
	KindAbort
	KindNone
)

func (k ExceptionKind) String() string {
	switch k {
	case KindFault:
		return "fault"
	case KindTrap:
		return "trap"
	case KindInterrupt:
		return "interrupt"
	case KindAbort:
		return "abort"
	default:
		return "none"
	}
}

// ExceptionInfo describes one of the 32 reserved CPU-exception vectors.
type ExceptionInfo struct {
	Name         string
	Kind         ExceptionKind
	HasErrorCode bool
}

// Exceptions is the fixed table of the 32 architectural exception vectors, their human-readable
// names, and whether the CPU itself pushes an error code for them.
var Exceptions = [32]ExceptionInfo{
	0:  {"divide-error", KindFault, false},
	1:  {"debug", KindFault, false},
	2:  {"nmi", KindInterrupt, false},
	3:  {"breakpoint", KindTrap, false},
	4:  {"overflow", KindTrap, false},
	5:  {"bound-range", KindFault, false},
	6:  {"invalid-opcode", KindFault, false},
	7:  {"device-not-available", KindFault, false},
	8:  {"double-fault", KindAbort, true},
	9:  {"coprocessor-segment-overrun", KindFault, false},
	10: {"invalid-tss", KindFault, true},
	11: {"segment-not-present", KindFault, true},
	12: {"stack-fault", KindFault, true},
	13: {"general-protection", KindFault, true},
	14: {"page-fault", KindFault, true},
	15: {"reserved", KindNone, false},
	16: {"x87-fpu-error", KindFault, false},
	17: {"alignment-check", KindFault, true},
	18: {"machine-check", KindAbort, false},
	19: {"simd-fp-exception", KindFault, false},
	20: {"virtualization-exception", KindFault, false},
	21: {"reserved", KindNone, false},
	22: {"reserved", KindNone, false},
	23: {"reserved", KindNone, false},
	24: {"reserved", KindNone, false},
	25: {"reserved", KindNone, true},
	26: {"reserved", KindNone, false},
	27: {"reserved", KindNone, false},
	28: {"reserved", KindNone, false},
	29: {"reserved", KindNone, false},
	30: {"security-exception", KindNone, false},
	31: {"reserved", KindNone, false},
}

var errReserved = errors.New("idt: reserved exception vector")

// Dispatcher owns the gate table and routes CPU exceptions, IRQs, and the syscall trap to their
// registered handlers.
type Dispatcher struct {
	table Table
	pic   *pic.Controller
	log   *log.Logger
}

// Table is the 256-entry gate array.
type Table [NumVectors]Gate

// New creates a dispatcher with every gate absent.
func New(ctrl *pic.Controller) *Dispatcher {
	return &Dispatcher{
		pic: ctrl,
		log: log.DefaultLogger(),
	}
}

// Install registers a handler at a vector and marks the gate present. Per the spec's registry
// note, the mask-mutate-unmask sequence must be observed atomically by callers: Install masks the
// line (for IRQ vectors) for the duration of the swap.
func (d *Dispatcher) Install(vec uint8, typ GateType, dpl Privilege, handler HandlerFunc) {
	if vec >= IRQBase && vec <= IRQMax && d.pic != nil {
		line := vec - IRQBase
		d.pic.Mask(line)
		defer d.pic.Unmask(line)
	}

	d.table[vec] = Gate{Present: true, DPL: dpl, Type: typ, Handler: handler}
}

// Remove clears a gate's present bit and handler, under the same masked critical section as
// Install.
func (d *Dispatcher) Remove(vec uint8) {
	if vec >= IRQBase && vec <= IRQMax && d.pic != nil {
		line := vec - IRQBase
		d.pic.Mask(line)
		defer d.pic.Unmask(line)
	}

	d.table[vec] = Gate{}
}

// Gate returns the current contents of a slot, for tests and diagnostics.
func (d *Dispatcher) Gate(vec uint8) Gate { return d.table[vec] }

// DoException runs the CPU-exception handler registered at vec, if any. It mirrors the stub's
// contract: non-error-code exceptions are realigned so the handler always sees a Frame with
// ErrorCode populated (zero when the CPU doesn't supply one).
func (d *Dispatcher) DoException(vec uint8, frame Frame) error {
	if vec > ExceptionMax {
		return fmt.Errorf("idt: vector %d out of exception range", vec)
	}

	info := Exceptions[vec]
	if info.Kind == KindNone {
		return fmt.Errorf("%w: %d", errReserved, vec)
	}

	frame.Vector = vec
	frame.HasError = info.HasErrorCode

	if !info.HasErrorCode {
		frame.ErrorCode = 0
	}

	gate := d.table[vec]
	if !gate.Present || gate.Handler == nil {
		return fmt.Errorf("idt: no handler for exception %d (%s)", vec, info.Name)
	}

	return gate.Handler(&frame)
}

// DoIRQ bit-inverts the vector the way the assembly stub does (pushing ~vec onto the stack),
// un-inverts it here to recover the real vector, bounds-checks it, calls the handler if one is
// present, and then sends the end-of-interrupt.
func (d *Dispatcher) DoIRQ(invertedVec uint8) error {
	vec := ^invertedVec

	if vec < IRQBase || vec > IRQMax {
		return fmt.Errorf("idt: irq vector %d out of range", vec)
	}

	line := vec - IRQBase

	gate := d.table[vec]
	if gate.Present && gate.Handler != nil {
		if err := gate.Handler(nil); err != nil {
			d.log.Error("idt: irq handler error", "vec", vec, "err", err)
		}
	}

	if d.pic != nil {
		d.pic.EOI(line)
	}

	return nil
}

// DoSyscall runs the handler installed at the syscall gate (vector 128), which must be callable
// from user mode (DPL=user).
func (d *Dispatcher) DoSyscall(frame Frame) (int32, error) {
	gate := d.table[SyscallVector]
	if !gate.Present || gate.Handler == nil {
		return -1, fmt.Errorf("idt: syscall gate not installed")
	}

	if gate.DPL != PrivilegeUser {
		return -1, fmt.Errorf("idt: syscall gate is not user-callable")
	}

	frame.Vector = SyscallVector

	err := gate.Handler(&frame)
	if err != nil {
		return -1, err
	}

	return frame.Result, nil
}
