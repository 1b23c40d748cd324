// Package mm models the kernel's paging layout: a flat, mostly-identity map with three carved-out
// regions -- the 4 KiB-granular window over the low 4 MiB (VGA and per-terminal shadow
// framebuffers), the single 4 MiB supervisor page holding the kernel image, and the 4 MiB
// per-process user window at virtual 128 MiB, switched on every context switch.
package mm

import (
	"fmt"

	"github.com/pcoslab/pcos/internal/ioport"
	"github.com/pcoslab/pcos/internal/log"
)

const (
	MiB = 1 << 20
	KiB = 1 << 10

	// KernelImageBase is the single supervisor page mapping the kernel image.
	KernelImageBase = 4 * MiB

	// PidFrameBase is where the physical frames reserved for user programs begin: pid N's
	// window is mapped to PidFrameBase + N*4MiB.
	PidFrameBase = 8 * MiB

	// UserWindowBase is the virtual address of the per-process 4 MiB user window.
	UserWindowBase = 128 * MiB
	UserWindowSize = 4 * MiB

	// UserEntryOffset is where a loaded binary's first byte lands within the user window.
	UserEntryOffset = 0x48000

	// MaxProcesses bounds the number of distinct pid frames the low memory map can address.
	MaxProcesses = 8
)

var (
	// ErrInvalidPID is returned when switching to or mapping a pid outside [0, MaxProcesses).
	ErrInvalidPID = fmt.Errorf("mm: invalid pid")

	// ErrVidmapRange is returned by callers validating a vidmap target pointer; see syscall.Vidmap.
	ErrVidmapRange = fmt.Errorf("mm: vidmap pointer out of range")
)

// Directory models the page directory. It does not hold real page-table bytes; it tracks just
// the state that changes across a context switch or a vidmap call, which is everything the rest
// of the kernel can actually observe.
type Directory struct {
	currentPID   int
	hasCurrent   bool
	vidmapPhys   uint32
	vidmapLogged bool
	log          *log.Logger
}

// New creates an empty page directory, as if no process has yet been switched in.
func New() *Directory {
	return &Directory{
		currentPID: -1,
		log:        log.DefaultLogger(),
	}
}

// UserFrame returns the physical base address of a pid's 4 MiB user window, per the fixed
// PidFrameBase + pid*4MiB layout.
func UserFrame(pid int) (uint32, error) {
	if pid < 0 || pid >= MaxProcesses {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}

	return PidFrameBase + uint32(pid)*UserWindowSize, nil
}

// SwitchTo rewrites the 128 MiB directory entry to the target pid's frame and flushes the TLB.
// There is no failure mode beyond an invalid pid -- the caller is responsible for rejecting that
// before it reaches here, matching the spec's "none" failure-mode note, but SwitchTo itself still
// validates defensively since page-table corruption from a bad pid would otherwise be silent.
func (d *Directory) SwitchTo(pid int) error {
	frame, err := UserFrame(pid)
	if err != nil {
		return err
	}

	d.currentPID = pid
	d.hasCurrent = true
	ioport.FlushTLB()

	d.log.Debug("mm: switched", "pid", pid, "frame", fmt.Sprintf("%#x", frame))

	return nil
}

// Current returns the pid currently mapped into the user window, and whether any process has
// been switched in yet.
func (d *Directory) Current() (pid int, ok bool) {
	return d.currentPID, d.hasCurrent
}

// MapUserVidmem overwrites the user-vidmap page-table entry to point at a terminal's shadow
// framebuffer, or at the real VGA frame if visible is true.
func (d *Directory) MapUserVidmem(physAddr uint32, visible bool) {
	d.vidmapPhys = physAddr
	d.log.Debug("mm: vidmap remapped", "phys", fmt.Sprintf("%#x", physAddr), "visible", visible)
}

// VidmapPhys returns the physical address currently backing the user-vidmap page.
func (d *Directory) VidmapPhys() uint32 {
	return d.vidmapPhys
}

// ValidateVidmapTarget implements the redesigned vidmap bounds check the spec calls for: the
// original only checked the pointer was >= 8 MiB; this also bounds it above the addressable
// space and requires word alignment.
func ValidateVidmapTarget(ptr uint32) error {
	if ptr < KernelImageBase+4*MiB {
		return ErrVidmapRange
	}

	if ptr >= UserWindowBase+UserWindowSize {
		return ErrVidmapRange
	}

	if ptr%4 != 0 {
		return fmt.Errorf("%w: unaligned", ErrVidmapRange)
	}

	return nil
}
