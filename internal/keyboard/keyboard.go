// Package keyboard decodes PS/2-style scancodes into terminal input: printable characters fed to
// the active terminal's line buffer, and the small set of chorded shortcuts (Alt+Fx terminal
// switch, Ctrl+L clear) the kernel's keyboard handler recognizes.
package keyboard

import (
	"sync"

	"github.com/pcoslab/pcos/internal/tty"
)

// Scancode is a raw byte off the keyboard controller's data port. The high bit distinguishes a
// break (key-up) code from a make (key-down) code, following the PS/2 set-1 convention.
type Scancode uint8

const breakBit = Scancode(0x80)

// Well-known scancodes this decoder gives chorded meaning to.
const (
	scLeftShift  = Scancode(0x2a)
	scRightShift = Scancode(0x36)
	scLeftCtrl   = Scancode(0x1d)
	scLeftAlt    = Scancode(0x38)
	scEnter      = Scancode(0x1c)
	scBackspace  = Scancode(0x0e)
	scF1         = Scancode(0x3b)
	scF2         = Scancode(0x3c)
	scF3         = Scancode(0x3d)
	scL          = Scancode(0x26)
	scUp         = Scancode(0x48)
	scDown       = Scancode(0x50)
	scInsert     = Scancode(0x52)
)

// unshifted and shifted map a make-code's low 7 bits to the ASCII it produces. Unmapped codes
// decode to 0 and are ignored.
var unshifted = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x39: ' ',
	0x34: '.', 0x33: ',', 0x35: '/', 0x27: ';', 0x28: '\'',
}

var shifted = [128]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0a: '(', 0x0b: ')',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1e: 'A', 0x1f: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x2c: 'Z', 0x2d: 'X', 0x2e: 'C', 0x2f: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M',
	0x39: ' ',
	0x34: '>', 0x33: '<', 0x35: '?', 0x27: ':', 0x28: '"',
}

// Decoder holds the keyboard's modifier latches and routes decoded input to the terminal
// multiplexer's currently visible terminal. Like the original vm.Keyboard it serializes state
// behind a single mutex; there's no status-register byte here because there's no bus to read one
// off of, but the same "one device, one lock" shape carries over.
type Decoder struct {
	mu    sync.Mutex
	shift bool
	ctrl  bool
	alt   bool

	mux *tty.Multiplexer
}

// NewDecoder creates a decoder that drives terminal switches and line edits on mux.
func NewDecoder(mux *tty.Multiplexer) *Decoder {
	return &Decoder{mux: mux}
}

// HandleScancode processes one scancode, updating modifier state or acting on the currently
// visible terminal.
func (d *Decoder) HandleScancode(code Scancode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	down := code&breakBit == 0
	key := code &^ breakBit

	switch key {
	case scLeftShift, scRightShift:
		d.shift = down
		return
	case scLeftCtrl:
		d.ctrl = down
		return
	case scLeftAlt:
		d.alt = down
		return
	}

	if !down {
		return
	}

	term := d.mux.Terminal(d.mux.Current())
	if term == nil {
		return
	}

	switch {
	case d.alt && key == scF1:
		_ = d.mux.Switch(0)
		return
	case d.alt && key == scF2:
		_ = d.mux.Switch(1)
		return
	case d.alt && key == scF3:
		_ = d.mux.Switch(2)
		return
	case d.ctrl && key == scL:
		term.Clear()
		return
	case key == scEnter:
		term.Enter()
		return
	case key == scBackspace:
		term.Backspace()
		return
	case key == scUp:
		if line, ok := term.HistoryUp(); ok {
			term.SetLine(line)
		}
		return
	case key == scDown:
		if line, ok := term.HistoryDown(); ok {
			term.SetLine(line)
		}
		return
	case key == scInsert:
		if term.Mode() == tty.ModeInsert {
			term.SetMode(tty.ModeReplace)
		} else {
			term.SetMode(tty.ModeInsert)
		}
		return
	}

	var ascii byte
	if d.shift {
		ascii = shifted[key]
	} else {
		ascii = unshifted[key]
	}

	if ascii != 0 {
		term.AppendLine(ascii)
	}
}
