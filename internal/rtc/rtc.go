// Package rtc models the real-time clock: one hardware tick source driven at a fixed high
// frequency, and a per-process virtualized rate exposed through an RTC file's open/read/write
// operations.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// HWFrequency is the highest rate the hardware RTC can be programmed for, i.e. the rate when
// the RS register selects its fastest setting. 32768 >> (RS-1) is maximized at RS=1.
const HWFrequency = 32768

// MaxRate is the fastest virtual rate a process may request.
const MaxRate = 1024

var (
	ErrBadRate = errors.New("rtc: rate must be a non-zero power of two no greater than 1024")
)

// Clock is the single hardware tick source. Tick should be called at HWFrequency Hz by whatever
// drives real time for the simulation (a test, or a real wall-clock goroutine in cmd/pcos).
type Clock struct {
	mu   sync.Mutex
	cond *sync.Cond
	tick uint64
}

// NewClock creates a clock with its tick counter at zero.
func NewClock() *Clock {
	c := &Clock{}
	c.cond = sync.NewCond(&c.mu)

	return c
}

// Tick advances the hardware tick counter by one and wakes any blocked readers. The counter is
// monotonic and 32-bit-wide in the original kernel; here it's 64-bit and overflow is not a
// practical concern, consistent with the spec's note that wall-clock deltas used are short-lived.
func (c *Clock) Tick() {
	c.mu.Lock()
	c.tick++
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Now returns the current hardware tick count.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tick
}

// ValidRate reports whether rate is a legal virtual RTC rate: non-zero, a power of two, and no
// greater than MaxRate.
func ValidRate(rate uint32) bool {
	return rate != 0 && rate <= MaxRate && rate&(rate-1) == 0
}

// Handle is a process' open RTC file: its chosen virtual rate. Each Wait takes its own starting
// tick when it is called.
type Handle struct {
	clock *Clock
	rate  uint32
}

// DefaultRate is the rate an RTC file opens at before any write changes it, matching the
// original kernel's DEFAULT_RTC_RATE.
const DefaultRate = 2

// Open creates a handle bound to clock at the default rate.
func Open(clock *Clock) *Handle {
	return &Handle{clock: clock, rate: DefaultRate}
}

// Rate returns the handle's current virtual rate.
func (h *Handle) Rate() uint32 { return h.rate }

// SetRate validates and installs a new virtual rate, as system_write does for an RTC fd.
func (h *Handle) SetRate(rate uint32) error {
	if !ValidRate(rate) {
		return fmt.Errorf("%w: got %d", ErrBadRate, rate)
	}

	h.rate = rate

	return nil
}

// Wait blocks until at least one tick has elapsed at the handle's virtual rate, i.e. until
// hw_rate/rate hardware ticks have passed since the call started. It returns early if ctx is
// cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	delta := uint64(HWFrequency / h.rate)

	h.clock.mu.Lock()
	start := h.clock.tick
	target := start + delta

	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			h.clock.mu.Lock()
			h.clock.cond.Broadcast()
			h.clock.mu.Unlock()
		case <-done:
		}
	}()

	for h.clock.tick < target {
		if ctx.Err() != nil {
			h.clock.mu.Unlock()
			close(done)

			return ctx.Err()
		}

		h.clock.cond.Wait()
	}

	h.clock.mu.Unlock()
	close(done)

	return nil
}
