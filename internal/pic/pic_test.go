package pic_test

import (
	"testing"

	"github.com/pcoslab/pcos/internal/pic"
)

func TestNewMasksEverything(t *testing.T) {
	c := pic.New()

	for line := uint8(0); line < 16; line++ {
		if !c.Masked(line) {
			t.Fatalf("line %d expected masked on power-on", line)
		}
	}
}

func TestInitUnmasksCascade(t *testing.T) {
	c := pic.New()
	c.Init()

	if c.Masked(pic.CascadeLine) {
		t.Fatal("cascade line should be unmasked after Init")
	}

	if !c.Masked(0) {
		t.Fatal("non-cascade lines should remain masked after Init")
	}
}

func TestMaskUnmaskRoundTrip(t *testing.T) {
	c := pic.New()
	c.Init()

	c.Unmask(1)
	if c.Masked(1) {
		t.Fatal("line 1 should be unmasked")
	}

	c.Mask(1)
	if !c.Masked(1) {
		t.Fatal("line 1 should be masked again")
	}
}

func TestMaskUnmaskSlaveLines(t *testing.T) {
	c := pic.New()
	c.Init()

	c.Unmask(10)
	if c.Masked(10) {
		t.Fatal("slave line 10 should be unmasked")
	}

	if c.Masked(9) == false {
		t.Fatal("slave line 9 should remain masked")
	}
}
