package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is a serial console for the simulated machine, built on the host terminal's raw mode.
// It adapts the keyboard and display side of the simulation for use on a real tty: bytes typed
// on the host terminal are fed into a Terminal's line discipline directly (there being no PS/2
// controller standing between a real host keystroke and this process), and that Terminal's
// framebuffer is rendered back to the host terminal after every change.
//
// [1]: See: tty(4), termios(4).
type Console struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State

	keyCh chan byte
}

// ErrNoTTY is returned if standard input is not a terminal. In this case, asynchronous I/O is
// not supported by the console.
var ErrNoTTY error = errors.New("console: not a TTY")

// Termios ioctl request numbers for the host platform.
const (
	getTermiosIoctl = unix.TCGETS
	setTermiosIoctl = unix.TCSETS
)

// NewConsole creates a Console using the provided streams. If the input stream is not a
// terminal, ErrNoTTY is returned. Callers are responsible for calling Restore to return the
// terminal to its initial state.
func NewConsole(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	cons := &Console{
		fd:    fd,
		in:    sin,
		out:   term.NewTerminal(sout, ""),
		state: saved,
		keyCh: make(chan byte, 1),
	}

	if err := cons.setTerminalParams(1, 0); err != nil {
		return nil, err
	}

	return cons, nil
}

// Writer returns an io.Writer that writes to the host terminal.
func (c *Console) Writer() io.Writer { return c.out }

// Restore returns the host terminal to its initial state and cancels in-progress reads.
func (c *Console) Restore() {
	_ = os.Stdin.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = os.Stdin.SetReadDeadline(time.Time{})

	return nil
}

// Run bridges the host terminal to mux's currently visible terminal until ctx is cancelled: raw
// bytes typed on the host are applied to the line discipline, and the result is redrawn after
// every keystroke.
func (c *Console) Run(ctx context.Context, mux *Multiplexer) error {
	go c.readHost(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key := <-c.keyCh:
			term := mux.Terminal(mux.Current())
			if term == nil {
				continue
			}

			c.applyKey(term, key)
			c.render(term)
		}
	}
}

func (c *Console) applyKey(term *Terminal, key byte) {
	switch key {
	case '\r', '\n':
		term.Enter()
	case 0x7f, 0x08:
		term.Backspace()
	case 0x0c: // Ctrl-L
		term.Clear()
	default:
		if key >= 0x20 && key < 0x7f {
			term.AppendLine(key)
		}
	}
}

func (c *Console) render(term *Terminal) {
	fb := term.Snapshot()

	fmt.Fprint(c.out, "\x1b[2J\x1b[H")

	for y := 0; y < len(fb); y++ {
		for x := 0; x < len(fb[y]); x++ {
			if fb[y][x].Glyph == 0 {
				fmt.Fprint(c.out, " ")
			} else {
				fmt.Fprintf(c.out, "%c", fb[y][x].Glyph)
			}
		}

		fmt.Fprint(c.out, "\r\n")
	}
}

// readHost reads bytes from the host terminal and writes them to the key channel until ctx is
// cancelled.
func (c *Console) readHost(ctx context.Context) {
	buf := bufio.NewReader(c.in)

	_ = syscall.SetNonblock(c.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case c.keyCh <- b:
		}
	}
}
