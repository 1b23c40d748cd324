// Package pit drives the scheduler's round-robin tick: a fixed-frequency ticker goroutine that
// calls back into whatever owns the run queue, the same shape the original exec command used to
// drive a machine's cycle loop against a context.
package pit

import (
	"context"
	"time"

	"github.com/pcoslab/pcos/internal/log"
)

// Frequency is the scheduler tick rate. The original kernel's PIT is programmed for roughly
// 50Hz; wall-clock fidelity beyond that isn't a goal here.
const Frequency = 50

// OnTick is called once per timer tick, from the timer's own goroutine.
type OnTick func()

// Timer drives an OnTick callback at Frequency Hz until ctx is cancelled.
type Timer struct {
	interval time.Duration
	log      *log.Logger
}

// New creates a timer at the standard scheduler frequency.
func New() *Timer {
	return &Timer{
		interval: time.Second / Frequency,
		log:      log.DefaultLogger(),
	}
}

// Run blocks, invoking onTick every interval, until ctx is done.
func (t *Timer) Run(ctx context.Context, onTick OnTick) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.log.Debug("pit: started", "hz", Frequency)

	for {
		select {
		case <-ticker.C:
			onTick()
		case <-ctx.Done():
			t.log.Debug("pit: stopped")
			return ctx.Err()
		}
	}
}
