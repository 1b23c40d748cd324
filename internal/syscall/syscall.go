// Package syscall implements the kernel's system-call surface: argument handling, dispatch by
// call number, the execute/halt control-transfer pair, and the file-descriptor operations that
// sit on top of internal/file's backends.
//
// There's no instruction stream here to interpret, so a "user program" is a registered Go
// closure (ProgramBody) looked up by the filename execute resolves -- but it's reached only
// after the same binary-header validation real execute performs against the file-system image.
// Halt never returns to its caller; it unwinds through a panic/recover pair the way a real
// IRET would jump rather than return.
package syscall

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/pcoslab/pcos/internal/file"
	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/idt"
	"github.com/pcoslab/pcos/internal/ioport"
	"github.com/pcoslab/pcos/internal/log"
	"github.com/pcoslab/pcos/internal/mm"
	"github.com/pcoslab/pcos/internal/process"
	"github.com/pcoslab/pcos/internal/rtc"
	"github.com/pcoslab/pcos/internal/tty"
)

// Call numbers, 1-based, matching the gate-0x80 ABI table.
const (
	CallHalt = 1 + iota
	CallExecute
	CallRead
	CallWrite
	CallOpen
	CallClose
	CallGetargs
	CallVidmap
	CallSetHandler
	CallSigreturn
	CallRun
)

// InheritTerminal is the execute tid argument meaning "bind the child to the caller's
// terminal". It is distinct from process.HeadlessTerminal (-1, explicit headless) and any
// concrete terminal id.
const InheritTerminal = -2

// errUnknownProgram names the case where execute resolves a binary the kernel has no registered
// body for. Execute does not return it: the caller sees plain -1.
var errUnknownProgram = errors.New("syscall: no program body registered")

// ProgramBody is a user program's entry point. It must eventually call Syscalls.Halt; returning
// without doing so ends the process with status 0, without closing its descriptors and without
// the respawn a non-haltable PCB gets from Halt.
type ProgramBody func(ctx context.Context, k *Syscalls, proc *process.PCB)

// haltSignal unwinds runChild's invocation the way an IRET jumps rather than returns.
type haltSignal struct {
	status int32
}

// Syscalls is the kernel's system-call implementation, closing over every subsystem a call
// might touch.
type Syscalls struct {
	fs       *fsimage.Image
	procs    *process.Table
	mux      *tty.Multiplexer
	paging   *mm.Directory
	rtcClock *rtc.Clock
	runner   Runner
	programs map[string]ProgramBody
	log      *log.Logger

	// critical guards every multi-step touch of procs/paging: neither the process table nor
	// the paging directory carries its own lock, matching the original kernel's single-CPU
	// assumption that this state is only ever touched with interrupts off. Boot now runs one
	// goroutine per top-level job, which breaks that assumption, so Cli/Restore stand in for
	// cli/sti here instead of being left unwired.
	critical *ioport.Flags

	// dispatcher is the installed syscall gate, set by SetDispatcher. Trap routes through it
	// when present so a program body's only path into the kernel is int 0x80, matching the
	// syscall ABI in spec; it's nil in tests that exercise Dispatch/Read/Write/Execute directly.
	dispatcher *idt.Dispatcher
}

// Runner enqueues a top-level job; internal/scheduler implements it. Defined here, the way
// internal/scheduler defines Executor, so neither package imports the other.
type Runner interface {
	Enqueue(command string, terminalID int, haltable bool) error
}

// New creates a syscall layer bound to the given file-system image, process table, terminal
// multiplexer, paging directory, and RTC hardware clock. Register program bodies with Register
// before calling Execute.
func New(fs *fsimage.Image, procs *process.Table, mux *tty.Multiplexer, paging *mm.Directory, clock *rtc.Clock) *Syscalls {
	return &Syscalls{
		fs:       fs,
		procs:    procs,
		mux:      mux,
		paging:   paging,
		rtcClock: clock,
		programs: make(map[string]ProgramBody),
		log:      log.DefaultLogger(),
		critical: ioport.NewFlags(),
	}
}

// SetRunner installs the scheduler's enqueue endpoint, used by Run. Two-phase construction
// mirrors Scheduler.SetExecutor on the other side of the same cycle.
func (k *Syscalls) SetRunner(r Runner) { k.runner = r }

// SetDispatcher installs the syscall gate on d: vector SyscallVector, a trap gate, DPL=user,
// matching the gate-0x80 ABI the spec's dispatch registry calls for. Once installed, Trap routes
// every call through d.DoSyscall instead of calling a method on k directly.
func (k *Syscalls) SetDispatcher(d *idt.Dispatcher) {
	k.dispatcher = d
	d.Install(idt.SyscallVector, idt.GateTrap, idt.PrivilegeUser, k.handleTrap)
}

// trapArgs is what Trap stashes in a Frame's Payload: the registered gate handler unpacks it and
// hands the call off to Dispatch. It never leaves this package.
type trapArgs struct {
	ctx  context.Context
	proc *process.PCB
	num  uint32
	args Args
}

// handleTrap is the handler SetDispatcher installs at the syscall gate. It's the only caller of
// Dispatch in the live kernel: everything a program body does reaches here, not a direct method
// call, once a dispatcher has been wired in.
func (k *Syscalls) handleTrap(f *idt.Frame) error {
	t, ok := f.Payload.(trapArgs)
	if !ok {
		return fmt.Errorf("syscall: malformed trap frame")
	}

	status, err := k.Dispatch(t.ctx, t.proc, t.num, t.args)
	f.Result = status

	return err
}

// Trap is a program body's only sanctioned path into the kernel: it mirrors "int 0x80, eax=num"
// by building a Frame around num and args and routing it through the installed syscall gate. If
// no gate has been installed -- every test that constructs a Syscalls directly without calling
// SetDispatcher -- it falls back to calling Dispatch itself.
func (k *Syscalls) Trap(ctx context.Context, proc *process.PCB, num uint32, args Args) (int32, error) {
	if k.dispatcher == nil {
		return k.Dispatch(ctx, proc, num, args)
	}

	return k.dispatcher.DoSyscall(idt.Frame{UserMode: true, Payload: trapArgs{ctx: ctx, proc: proc, num: num, args: args}})
}

// Register binds a filename in the file-system image to a program body.
func (k *Syscalls) Register(name string, body ProgramBody) {
	k.programs[name] = body
}

// resolveBinary looks up name in the file-system image, validates its header the way execute
// does, and returns its registered program body.
func (k *Syscalls) resolveBinary(command string) (name string, body ProgramBody, ok bool) {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return "", nil, false
	}

	name = tokens[0]

	dentry, err := k.fs.ReadDentryByName(name)
	if err != nil || dentry.FileType != fsimage.TypeRegular {
		return "", nil, false
	}

	data, err := k.readWhole(dentry.Inode)
	if err != nil {
		return "", nil, false
	}

	if len(data) <= 4 || len(data) >= int(mm.UserWindowSize-mm.UserEntryOffset) {
		return "", nil, false
	}

	if !bytes.Equal(data[:4], []byte{0x7f, 'E', 'L', 'F'}) {
		return "", nil, false
	}

	if len(data) < 28 {
		return "", nil, false
	}

	_ = binary.LittleEndian.Uint32(data[24:28]) // Entry point; unused without an ISA to jump into.

	body, ok = k.programs[name]

	return name, body, ok
}

// Execute is the core control-transfer operation: resolve and validate a binary, allocate a
// pid, bind a terminal, and run the program body to completion, returning the child's exit
// status and writing it into the parent's child-status slot. The child is always haltable.
func (k *Syscalls) Execute(ctx context.Context, parent *process.PCB, command string, tidArg int) (int32, error) {
	_, body, ok := k.resolveBinary(command)
	if !ok {
		return -1, nil
	}

	prev := k.critical.Cli()
	child, err := k.procs.Alloc(parent.PID)
	if err != nil {
		k.critical.Restore(prev)
		return -2, nil
	}

	child.Argv = strings.Join(strings.Fields(command), " ")
	child.Haltable = true

	switch tidArg {
	case InheritTerminal:
		child.TerminalID = parent.TerminalID
	default:
		child.TerminalID = tidArg
	}

	k.installStdio(child)

	if err := k.paging.SwitchTo(child.PID); err != nil {
		k.procs.Free(child.PID)
		k.critical.Restore(prev)

		return -1, err
	}

	k.critical.Restore(prev)

	status, crashed := k.runChild(ctx, child, body)

	prev = k.critical.Cli()

	if err := k.paging.SwitchTo(parent.PID); err != nil {
		k.log.Error("syscall: failed to restore parent address space", "err", err)
	}

	k.procs.Free(child.PID)
	k.critical.Restore(prev)

	if crashed {
		status = 256
	}

	parent.ChildStatus = status

	return status, nil
}

// ExecuteTop creates a parent-less top-level process bound to terminal tid: its own parent,
// with no one blocked waiting on its exit status. It is the kernel's own bootstrap path and the
// landing point for jobs the run syscall enqueues -- neither goes through Execute above, since
// neither has a calling process to block. haltable is false only for the root shells booted onto
// each terminal: when their program body halts, runChild re-executes it in place instead of
// tearing it down, which is how root shells respawn forever. Jobs started with run are haltable
// and exit for good, same as any child of Execute. ExecuteTop only returns once the program body
// halts for good or, for a non-haltable root shell, once ctx is cancelled.
func (k *Syscalls) ExecuteTop(ctx context.Context, command string, tid int, haltable bool) (int32, error) {
	_, body, ok := k.resolveBinary(command)
	if !ok {
		return -1, nil
	}

	prev := k.critical.Cli()
	root, err := k.procs.Alloc(-1)
	if err != nil {
		k.critical.Restore(prev)
		return -2, nil
	}

	root.ParentID = root.PID
	root.Argv = strings.Join(strings.Fields(command), " ")
	root.Haltable = haltable
	root.TerminalID = tid

	k.installStdio(root)

	if err := k.paging.SwitchTo(root.PID); err != nil {
		k.procs.Free(root.PID)
		k.critical.Restore(prev)

		return -1, err
	}

	k.critical.Restore(prev)

	status, crashed := k.runChild(ctx, root, body)

	prev = k.critical.Cli()
	k.procs.Free(root.PID)
	k.critical.Restore(prev)

	if crashed {
		status = 256
	}

	return status, nil
}

func (k *Syscalls) installStdio(proc *process.PCB) {
	term := k.mux.Terminal(proc.TerminalID)
	if term == nil {
		proc.Files[process.FDStdin] = file.Descriptor{Present: true}
		proc.Files[process.FDStdout] = file.Descriptor{Present: true}

		return
	}

	proc.Files[process.FDStdin] = file.Descriptor{
		Backend: file.OpenTerminalIn(context.Background(), term),
		Present: true,
	}
	proc.Files[process.FDStdout] = file.Descriptor{
		Backend: file.OpenTerminalOut(term),
		Present: true,
	}
}

// runChild invokes body, absorbing the haltSignal panic Halt raises. If the PCB is not
// haltable -- a root shell -- the same command is re-executed in a loop rather than tearing the
// process down, which is how root shells respawn themselves forever.
func (k *Syscalls) runChild(ctx context.Context, child *process.PCB, body ProgramBody) (status int32, crashed bool) {
	for {
		result, returned := k.invoke(ctx, child, body)

		if !returned {
			return 0, child.Crashed
		}

		if child.Haltable {
			return result.status, child.Crashed
		}

		if ctx.Err() != nil {
			return result.status, child.Crashed
		}

		child.Crashed = false
	}
}

func (k *Syscalls) invoke(ctx context.Context, child *process.PCB, body ProgramBody) (result haltSignal, halted bool) {
	defer func() {
		if r := recover(); r != nil {
			hs, ok := r.(haltSignal)
			if !ok {
				panic(r)
			}

			result = hs
			halted = true
		}
	}()

	body(ctx, k, child)

	return haltSignal{}, false
}

// Halt never returns to its caller: it releases the process' file descriptors 2-7 and unwinds the
// current program body via panic, carrying the exit status (256 if crashed) back to the execute
// frame, the way the original jumps to the post-IRET label instead of returning. Execute then
// writes that status into the parent's child-status slot.
func (k *Syscalls) Halt(proc *process.PCB, status int32) {
	if proc.Crashed {
		status = 256
	}

	for fd := 2; fd < process.NumFiles; fd++ {
		if proc.Files[fd].Present && proc.Files[fd].Backend != nil {
			_ = proc.Files[fd].Backend.Close()
		}

		proc.Files[fd] = file.Descriptor{}
	}

	panic(haltSignal{status: status})
}

// Read reads from fd into buf, or -1 on an invalid or unopened descriptor.
func (k *Syscalls) Read(proc *process.PCB, fd int, buf []byte) int32 {
	desc, ok := k.descriptor(proc, fd)
	if !ok || desc.Backend == nil {
		return -1
	}

	n, err := desc.Backend.Read(buf)
	if err != nil {
		return -1
	}

	return int32(n)
}

// Write writes buf to fd, or -1 on an invalid or unopened descriptor.
func (k *Syscalls) Write(proc *process.PCB, fd int, buf []byte) int32 {
	desc, ok := k.descriptor(proc, fd)
	if !ok || desc.Backend == nil {
		return -1
	}

	n, err := desc.Backend.Write(buf)
	if err != nil {
		return -1
	}

	return int32(n)
}

// Open resolves name against the file-system image, binds the matching backend, and installs it
// at the lowest free fd (2 upward), or -1 if no fd is free or the name can't be resolved.
func (k *Syscalls) Open(ctx context.Context, proc *process.PCB, name string) int32 {
	fd := -1

	for i := 2; i < process.NumFiles; i++ {
		if !proc.Files[i].Present {
			fd = i
			break
		}
	}

	if fd < 0 {
		return -1
	}

	dentry, err := k.fs.ReadDentryByName(name)
	if err != nil {
		if name != "rtc" {
			return -1
		}
	}

	var backend file.File

	switch {
	case name == "rtc":
		backend = file.OpenRTC(ctx, k.rtcClock)
	case dentry.FileType == fsimage.TypeDir:
		backend = file.OpenDirectory(k.fs)
	case dentry.FileType == fsimage.TypeRegular:
		backend = file.OpenRegular(k.fs, dentry.Inode)
	default:
		return -1
	}

	proc.Files[fd] = file.Descriptor{Backend: backend, Present: true}

	return int32(fd)
}

// Close releases fd. fd 0 and 1 may never be closed.
func (k *Syscalls) Close(proc *process.PCB, fd int) int32 {
	if fd < 2 || fd >= process.NumFiles || !proc.Files[fd].Present {
		return -1
	}

	if proc.Files[fd].Backend != nil {
		if err := proc.Files[fd].Backend.Close(); err != nil {
			return -1
		}
	}

	proc.Files[fd] = file.Descriptor{}

	return 0
}

// Getargs copies the process' argv after its first token and the following space into buf.
func (k *Syscalls) Getargs(proc *process.PCB, buf []byte) int32 {
	idx := strings.IndexByte(proc.Argv, ' ')
	if idx < 0 {
		return -1
	}

	rest := strings.TrimLeft(proc.Argv[idx+1:], " ")
	if rest == "" {
		return -1
	}

	copy(buf, rest)

	return 0
}

// Vidmap validates ptr against the redesigned (both-bounds) vidmap range check and, if it's
// valid, returns the physical address backing the current terminal's user-visible framebuffer.
func (k *Syscalls) Vidmap(proc *process.PCB, ptr uint32) (status int32, addr uint32) {
	if err := mm.ValidateVidmapTarget(ptr); err != nil {
		return -1, 0
	}

	term := k.mux.Terminal(proc.TerminalID)
	if term == nil {
		return -1, 0
	}

	prev := k.critical.Cli()
	k.paging.MapUserVidmem(k.paging.VidmapPhys(), term.Visible())
	addr := k.paging.VidmapPhys()
	k.critical.Restore(prev)

	return 0, addr
}

// Run enqueues command on the scheduler for terminal tid and returns immediately.
func (k *Syscalls) Run(command string, tid int) int32 {
	if k.runner == nil {
		return -1
	}

	if err := k.runner.Enqueue(command, tid, true); err != nil {
		return -1
	}

	return 0
}

// SetHandler always fails: signal delivery is not implemented.
func (k *Syscalls) SetHandler() int32 { return -1 }

// Sigreturn always fails: signal delivery is not implemented.
func (k *Syscalls) Sigreturn() int32 { return -1 }

func (k *Syscalls) descriptor(proc *process.PCB, fd int) (file.Descriptor, bool) {
	if fd < 0 || fd >= process.NumFiles || !proc.Files[fd].Present {
		return file.Descriptor{}, false
	}

	return proc.Files[fd], true
}

func (k *Syscalls) readWhole(inode uint32) ([]byte, error) {
	var out bytes.Buffer

	buf := make([]byte, fsimage.BlockSize)
	offset := uint32(0)

	for {
		n, err := k.fs.ReadData(inode, offset, buf)
		if err != nil {
			return nil, err
		}

		if n == 0 {
			break
		}

		out.Write(buf[:n])
		offset += uint32(n)
	}

	return out.Bytes(), nil
}

// Dispatch routes a numbered system call to its implementation, matching the gate-0x80 ABI
// table. Pointer-bearing arguments (buf, command, ptr) are passed as Go values rather than
// addresses, since there's no flat address space here for them to live in.
func (k *Syscalls) Dispatch(ctx context.Context, proc *process.PCB, num uint32, args Args) (int32, error) {
	switch num {
	case CallHalt:
		k.Halt(proc, args.Status)
		return 0, fmt.Errorf("syscall: halt: unreachable")
	case CallExecute:
		return k.Execute(ctx, proc, args.Command, args.TID)
	case CallRead:
		return k.Read(proc, args.FD, args.Buf), nil
	case CallWrite:
		return k.Write(proc, args.FD, args.Buf), nil
	case CallOpen:
		return k.Open(ctx, proc, args.Name), nil
	case CallClose:
		return k.Close(proc, args.FD), nil
	case CallGetargs:
		return k.Getargs(proc, args.Buf), nil
	case CallVidmap:
		status, addr := k.Vidmap(proc, args.Ptr)
		if args.Out != nil {
			*args.Out = addr
		}

		return status, nil
	case CallSetHandler:
		return k.SetHandler(), nil
	case CallSigreturn:
		return k.Sigreturn(), nil
	case CallRun:
		return k.Run(args.Command, args.TID), nil
	default:
		return -1, fmt.Errorf("syscall: unknown call number %d", num)
	}
}

// Args bundles every possible argument Dispatch might need for a given call number. Out
// receives vidmap's resolved address, standing in for the user pointer the real syscall writes
// through.
type Args struct {
	Status  int32
	Command string
	TID     int
	FD      int
	Buf     []byte
	Name    string
	Ptr     uint32
	Out     *uint32
}
