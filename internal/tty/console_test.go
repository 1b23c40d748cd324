package tty_test

import (
	"errors"
	"os"
	"testing"

	"github.com/pcoslab/pcos/internal/tty"
)

func TestNewConsoleRequiresATTY(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	_, err = tty.NewConsole(r, w)
	if !errors.Is(err, tty.ErrNoTTY) {
		t.Fatalf("expected ErrNoTTY for a non-terminal stdin, got %v", err)
	}
}
