// Package kernel wires every subsystem package together into a bootable machine: paging,
// interrupts, the file-system image, the process table, the terminal multiplexer, the
// scheduler, and the syscall layer, resolving the import cycle between scheduler and syscall
// the way internal/vm.New wired the CPU and its devices in the teacher.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/pcoslab/pcos/internal/config"
	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/idt"
	"github.com/pcoslab/pcos/internal/keyboard"
	"github.com/pcoslab/pcos/internal/log"
	"github.com/pcoslab/pcos/internal/mm"
	"github.com/pcoslab/pcos/internal/pic"
	"github.com/pcoslab/pcos/internal/pit"
	"github.com/pcoslab/pcos/internal/process"
	"github.com/pcoslab/pcos/internal/rtc"
	"github.com/pcoslab/pcos/internal/scheduler"
	"github.com/pcoslab/pcos/internal/syscall"
	"github.com/pcoslab/pcos/internal/tty"
)

// Kernel owns every subsystem and the goroutines that drive them.
type Kernel struct {
	Config config.Boot

	FS        *fsimage.Image
	Paging    *mm.Directory
	PIC       *pic.Controller
	IDT       *idt.Dispatcher
	Processes *process.Table
	Terminals *tty.Multiplexer
	Keyboard  *keyboard.Decoder
	RTC       *rtc.Clock
	Timer     *pit.Timer
	Scheduler *scheduler.Scheduler
	Syscalls  *syscall.Syscalls

	log *log.Logger
}

// New constructs a kernel from cfg and a raw file-system image, wiring the scheduler/syscall
// cycle via the two-phase Executor/Runner setters. Program bodies must be registered on the
// returned Kernel's Syscalls before Boot is called.
func New(cfg config.Boot, rawImage []byte) (*Kernel, error) {
	img, err := fsimage.Open(rawImage)
	if err != nil {
		return nil, fmt.Errorf("kernel: loading file-system image: %w", err)
	}

	picCtrl := pic.New()
	picCtrl.Init()

	k := &Kernel{
		Config:    cfg,
		FS:        img,
		Paging:    mm.New(),
		PIC:       picCtrl,
		IDT:       idt.New(picCtrl),
		Processes: process.New(),
		Terminals: tty.NewMultiplexer(),
		RTC:       rtc.NewClock(),
		Timer:     pit.New(),
		Scheduler: scheduler.New(),
		log:       log.DefaultLogger(),
	}

	k.Keyboard = keyboard.NewDecoder(k.Terminals)
	k.Syscalls = syscall.New(k.FS, k.Processes, k.Terminals, k.Paging, k.RTC)

	k.Scheduler.SetExecutor(rootExecutor{syscalls: k.Syscalls})
	k.Syscalls.SetRunner(k.Scheduler)
	k.Syscalls.SetDispatcher(k.IDT)

	return k, nil
}

// rootExecutor adapts Syscalls.ExecuteTop into scheduler.Executor: every job the scheduler
// promotes out of the pending queue is a parent-less top-level process.
type rootExecutor struct {
	syscalls *syscall.Syscalls
}

func (r rootExecutor) Execute(ctx context.Context, command string, terminalID int, haltable bool) (int32, error) {
	return r.syscalls.ExecuteTop(ctx, command, terminalID, haltable)
}

// Register binds a filename to a program body, delegating to the syscall layer.
func (k *Kernel) Register(name string, body syscall.ProgramBody) {
	k.Syscalls.Register(name, body)
}

// Boot starts the PIT and RTC drivers and enqueues the configured root shell on every visible
// terminal, then blocks until ctx is cancelled.
func (k *Kernel) Boot(ctx context.Context) error {
	for i := 0; i < k.Config.Terminals; i++ {
		if err := k.Scheduler.Enqueue(k.Config.RootShell, i, false); err != nil {
			return fmt.Errorf("kernel: enqueueing root shell on terminal %d: %w", i, err)
		}
	}

	go k.runRTC(ctx)

	k.log.Info("kernel: boot complete", "terminals", k.Config.Terminals)

	return k.Timer.Run(ctx, func() { k.Scheduler.OnTick(ctx) })
}

func (k *Kernel) runRTC(ctx context.Context) {
	ticker := time.NewTicker(time.Second / rtc.HWFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.RTC.Tick()
		case <-ctx.Done():
			return
		}
	}
}
