package tty_test

import (
	"context"
	"testing"
	"time"

	"github.com/pcoslab/pcos/internal/tty"
)

func TestSwitchRoundTrip(t *testing.T) {
	mux := tty.NewMultiplexer()

	t0 := mux.Terminal(0)
	for _, c := range "hello" {
		t0.AppendLine(byte(c))
	}

	before := t0.Snapshot()

	if err := mux.Switch(1); err != nil {
		t.Fatalf("switch to 1: %v", err)
	}

	if mux.Current() != 1 {
		t.Fatalf("current = %d, want 1", mux.Current())
	}

	if t0.Visible() {
		t.Fatal("terminal 0 should no longer be visible")
	}

	if err := mux.Switch(0); err != nil {
		t.Fatalf("switch back to 0: %v", err)
	}

	after := t0.Snapshot()

	if before != after {
		t.Fatal("framebuffer not byte-identical after A->B->A switch")
	}
}

func TestLineEditing(t *testing.T) {
	mux := tty.NewMultiplexer()
	term := mux.Terminal(0)

	for _, c := range "exit" {
		term.AppendLine(byte(c))
	}

	done := make(chan string, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		line, err := term.ReadLine(ctx)
		if err != nil {
			done <- ""
			return
		}

		done <- line
	}()

	term.Enter()

	select {
	case line := <-done:
		if line != "exit" {
			t.Fatalf("got %q, want %q", line, "exit")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ReadLine")
	}
}

func TestHistory(t *testing.T) {
	term := mustTerminal(t)

	for _, cmd := range []string{"ls", "pwd", "exit"} {
		for _, c := range cmd {
			term.AppendLine(byte(c))
		}

		term.Enter()

		// The line buffer is reset when a reader consumes the line, as the shell does.
		if _, err := term.ReadLine(context.Background()); err != nil {
			t.Fatalf("read line: %v", err)
		}
	}

	line, ok := term.HistoryUp()
	if !ok || line != "exit" {
		t.Fatalf("HistoryUp = %q, %v; want exit, true", line, ok)
	}

	line, ok = term.HistoryUp()
	if !ok || line != "pwd" {
		t.Fatalf("HistoryUp = %q, %v; want pwd, true", line, ok)
	}

	line, ok = term.HistoryDown()
	if !ok || line != "exit" {
		t.Fatalf("HistoryDown = %q, %v; want exit, true", line, ok)
	}
}

func mustTerminal(t *testing.T) *tty.Terminal {
	t.Helper()

	mux := tty.NewMultiplexer()

	return mux.Terminal(0)
}
