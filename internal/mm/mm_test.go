package mm_test

import (
	"errors"
	"testing"

	"github.com/pcoslab/pcos/internal/mm"
)

func TestUserFrameLayout(t *testing.T) {
	frame, err := mm.UserFrame(0)
	if err != nil {
		t.Fatalf("user frame: %v", err)
	}

	if frame != mm.PidFrameBase {
		t.Fatalf("frame = %#x, want %#x", frame, mm.PidFrameBase)
	}

	frame, err = mm.UserFrame(2)
	if err != nil {
		t.Fatalf("user frame: %v", err)
	}

	if frame != mm.PidFrameBase+2*mm.UserWindowSize {
		t.Fatalf("frame = %#x, want %#x", frame, mm.PidFrameBase+2*mm.UserWindowSize)
	}
}

func TestUserFrameInvalidPID(t *testing.T) {
	if _, err := mm.UserFrame(-1); !errors.Is(err, mm.ErrInvalidPID) {
		t.Fatalf("expected ErrInvalidPID, got %v", err)
	}

	if _, err := mm.UserFrame(mm.MaxProcesses); !errors.Is(err, mm.ErrInvalidPID) {
		t.Fatalf("expected ErrInvalidPID, got %v", err)
	}
}

func TestSwitchToTracksCurrent(t *testing.T) {
	dir := mm.New()

	if _, ok := dir.Current(); ok {
		t.Fatal("expected no current pid before first switch")
	}

	if err := dir.SwitchTo(3); err != nil {
		t.Fatalf("switch: %v", err)
	}

	pid, ok := dir.Current()
	if !ok || pid != 3 {
		t.Fatalf("current = %d, %v; want 3, true", pid, ok)
	}
}

func TestSwitchToInvalidPID(t *testing.T) {
	dir := mm.New()

	if err := dir.SwitchTo(99); !errors.Is(err, mm.ErrInvalidPID) {
		t.Fatalf("expected ErrInvalidPID, got %v", err)
	}
}

func TestMapUserVidmemTracksPhys(t *testing.T) {
	dir := mm.New()
	dir.MapUserVidmem(0xdeadb000, true)

	if dir.VidmapPhys() != 0xdeadb000 {
		t.Fatalf("vidmap phys = %#x, want 0xdeadb000", dir.VidmapPhys())
	}
}

func TestValidateVidmapTargetBounds(t *testing.T) {
	if err := mm.ValidateVidmapTarget(mm.KernelImageBase); !errors.Is(err, mm.ErrVidmapRange) {
		t.Fatal("expected below-range pointer to be rejected")
	}

	if err := mm.ValidateVidmapTarget(mm.UserWindowBase + mm.UserWindowSize); !errors.Is(err, mm.ErrVidmapRange) {
		t.Fatal("expected at-ceiling pointer to be rejected")
	}

	if err := mm.ValidateVidmapTarget(mm.KernelImageBase + 4*mm.MiB + 1); err == nil {
		t.Fatal("expected unaligned pointer to be rejected")
	}

	if err := mm.ValidateVidmapTarget(mm.KernelImageBase + 4*mm.MiB); err != nil {
		t.Fatalf("expected valid pointer to pass, got %v", err)
	}
}
