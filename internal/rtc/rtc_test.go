package rtc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pcoslab/pcos/internal/rtc"
)

func TestValidRate(t *testing.T) {
	cases := map[uint32]bool{
		0:    false,
		1:    true,
		2:    true,
		3:    false,
		1024: true,
		2048: false,
	}

	for rate, want := range cases {
		if got := rtc.ValidRate(rate); got != want {
			t.Errorf("ValidRate(%d) = %v, want %v", rate, got, want)
		}
	}
}

func TestSetRateRejectsInvalid(t *testing.T) {
	h := rtc.Open(rtc.NewClock())

	if err := h.SetRate(3); !errors.Is(err, rtc.ErrBadRate) {
		t.Fatalf("expected ErrBadRate, got %v", err)
	}

	if h.Rate() != rtc.DefaultRate {
		t.Fatalf("rate = %d, want unchanged default %d", h.Rate(), rtc.DefaultRate)
	}

	if err := h.SetRate(8); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	if h.Rate() != 8 {
		t.Fatalf("rate = %d, want 8", h.Rate())
	}
}

func TestWaitUnblocksAfterEnoughTicks(t *testing.T) {
	clock := rtc.NewClock()
	h := rtc.Open(clock)

	if err := h.SetRate(rtc.MaxRate); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	delta := rtc.HWFrequency / rtc.MaxRate

	done := make(chan error, 1)

	go func() {
		done <- h.Wait(context.Background())
	}()

	// Let Wait record its starting tick before any ticks arrive; it counts from that point.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < delta; i++ {
		clock.Tick()
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Wait to unblock")
	}
}

func TestWaitRespectsCancellation(t *testing.T) {
	h := rtc.Open(rtc.NewClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Wait(ctx); err == nil {
		t.Fatal("expected error from a cancelled context")
	}
}
