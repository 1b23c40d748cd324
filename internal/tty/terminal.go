// Package tty implements the terminal multiplexer: the per-terminal line-discipline buffer,
// command history, cursor state, and the Alt+Fx switch that moves visibility from one terminal to
// another. Each terminal keeps its own framebuffer, so a switch copies no screen contents.
package tty

import (
	"context"
	"fmt"
	"sync"

	"github.com/pcoslab/pcos/internal/console"
	"github.com/pcoslab/pcos/internal/log"
)

// NumVisible is the number of visible virtual terminals; Headless is the sentinel terminal id
// used by processes that aren't bound to any of them.
const (
	NumVisible = 3
	Headless   = -1

	LineBufCap    = 127
	HistoryCap    = 20
	DefaultFG     = 0x7
	DefaultBG     = 0x0
)

// Mode is the line editor's insert/replace state.
type Mode uint8

const (
	ModeInsert Mode = iota
	ModeReplace
)

// Terminal is one virtual console: its own shadow framebuffer, cursor, line buffer, and history.
type Terminal struct {
	ID int

	mu   sync.Mutex
	cond *sync.Cond

	screen  *console.Screen
	visible bool
	mode    Mode
	fg, bg  uint8

	line         []byte
	cursorInLine int
	readPending  bool
	returned     bool

	history     [HistoryCap]string
	historyLen  int
	historyHead int // Next slot to overwrite, ring-buffer order.
	viewIndex   int // Current position while browsing with up/down; -1 means "not browsing".
}

func newTerminal(id int) *Terminal {
	t := &Terminal{
		ID:     id,
		screen: console.NewScreen(),
		fg:     DefaultFG,
		bg:     DefaultBG,
		line:   make([]byte, 0, LineBufCap),
	}
	t.cond = sync.NewCond(&t.mu)
	t.viewIndex = -1

	return t
}

// Multiplexer owns the fixed terminal array, the id of the visible terminal, and a hidden scratch
// screen. Switch does not use the scratch screen.
type Multiplexer struct {
	mu        sync.Mutex
	terminals [NumVisible]*Terminal
	scratch   *console.Screen
	current   int

	log *log.Logger
}

// NewMultiplexer creates the fixed terminal set with terminal 0 visible.
func NewMultiplexer() *Multiplexer {
	m := &Multiplexer{
		scratch: console.NewScreen(),
		log:     log.DefaultLogger(),
	}

	for i := range m.terminals {
		m.terminals[i] = newTerminal(i)
	}

	m.terminals[0].visible = true

	return m
}

// Terminal returns the terminal record for id, or nil if id is out of range or Headless.
func (m *Multiplexer) Terminal(id int) *Terminal {
	if id < 0 || id >= NumVisible {
		return nil
	}

	return m.terminals[id]
}

// Current returns the id of the currently visible terminal.
func (m *Multiplexer) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// Switch performs the Alt+Fx handoff: it clears the current terminal's visibility flag, sets the
// target's, and records the target as current. Framebuffers, cursors, and modes stay with their
// own terminals, so nothing is copied or restored, and the user-vidmap page is not remapped here.
func (m *Multiplexer) Switch(newTID int) error {
	if newTID < 0 || newTID >= NumVisible {
		return fmt.Errorf("tty: bad terminal id %d", newTID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if newTID == m.current {
		return nil
	}

	old := m.terminals[m.current]
	next := m.terminals[newTID]

	old.mu.Lock()
	old.visible = false
	old.mu.Unlock()

	next.mu.Lock()
	next.visible = true
	next.mu.Unlock()

	m.current = newTID

	m.log.Debug("tty: switched", "from", old.ID, "to", next.ID)

	return nil
}

// screenPtr returns the framebuffer writes to this terminal land on: always its own
// *console.Screen, which doubles as the VGA buffer while the terminal is visible (the handoff
// above transfers nothing else).
func (t *Terminal) screenPtr() *console.Screen { return t.screen }

// PutChar writes one character to the terminal, wherever its framebuffer currently lives.
func (t *Terminal) PutChar(c byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screen.PutChar(c)
}

// Visible reports whether this terminal currently owns the physical screen.
func (t *Terminal) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.visible
}

// Snapshot returns a copy of the terminal's framebuffer, for tests asserting the A-B-A
// round-trip property.
func (t *Terminal) Snapshot() console.Framebuffer {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.screen.Snapshot()
}

// SetMode sets the line editor's insert/replace mode.
func (t *Terminal) SetMode(mode Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
}

// Mode returns the line editor's current insert/replace mode.
func (t *Terminal) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.mode
}

// AppendLine appends a printable byte to the line buffer, honouring the terminal's insert/replace
// mode, and echoes it to the screen. It is a no-op once the buffer is already full.
func (t *Terminal) AppendLine(c byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.line) >= LineBufCap {
		return
	}

	switch t.mode {
	case ModeReplace:
		if t.cursorInLine < len(t.line) {
			t.line[t.cursorInLine] = c
		} else {
			t.line = append(t.line, c)
		}
	default: // ModeInsert
		t.line = append(t.line, 0)
		copy(t.line[t.cursorInLine+1:], t.line[t.cursorInLine:len(t.line)-1])
		t.line[t.cursorInLine] = c
	}

	t.cursorInLine++
	t.screen.PutChar(c)
}

// Backspace removes the character before the line cursor, if any.
func (t *Terminal) Backspace() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursorInLine == 0 {
		return
	}

	copy(t.line[t.cursorInLine-1:], t.line[t.cursorInLine:])
	t.line = t.line[:len(t.line)-1]
	t.cursorInLine--
	t.screen.PutChar('\b')
}

// Enter finalizes the current line: it's pushed onto the history ring, the read-pending flag is
// cleared, and returned is raised to unblock a pending terminal read.
func (t *Terminal) Enter() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.line) > 0 {
		t.pushHistory(string(t.line))
	}

	t.screen.PutChar('\n')
	t.returned = true
	t.readPending = false
	t.cond.Broadcast()
}

func (t *Terminal) pushHistory(line string) {
	t.history[t.historyHead] = line
	t.historyHead = (t.historyHead + 1) % HistoryCap

	if t.historyLen < HistoryCap {
		t.historyLen++
	}

	t.viewIndex = -1
}

// HistoryUp walks one entry further back in history and returns it, or ok=false if there is
// nothing older.
func (t *Terminal) HistoryUp() (line string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.historyLen == 0 {
		return "", false
	}

	if t.viewIndex+1 >= t.historyLen {
		return "", false
	}

	t.viewIndex++
	idx := (t.historyHead - 1 - t.viewIndex + HistoryCap) % HistoryCap

	return t.history[idx], true
}

// HistoryDown walks one entry forward in history, returning "" (and ok=true) once back at the
// not-yet-submitted line.
func (t *Terminal) HistoryDown() (line string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.viewIndex < 0 {
		return "", false
	}

	t.viewIndex--

	if t.viewIndex < 0 {
		return "", true
	}

	idx := (t.historyHead - 1 - t.viewIndex + HistoryCap) % HistoryCap

	return t.history[idx], true
}

// SetLine replaces the line buffer wholesale -- used when history browsing overwrites it -- and
// echoes the new content.
func (t *Terminal) SetLine(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for range t.line {
		t.screen.PutChar('\b')
	}

	t.line = append(t.line[:0], s...)
	t.cursorInLine = len(t.line)

	for _, c := range t.line {
		t.screen.PutChar(c)
	}
}

// Clear blanks the screen (Ctrl-L).
func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screen.Clear()
}

// ReadLine blocks until Enter is pressed (or ctx is cancelled), then returns the completed line
// and resets the buffer for the next one. This is the suspension point backing a blocking
// terminal_read.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	t.readPending = true

	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		case <-done:
		}
	}()

	for !t.returned {
		if ctx.Err() != nil {
			t.mu.Unlock()
			close(done)

			return "", ctx.Err()
		}

		t.cond.Wait()
	}

	line := string(t.line)
	t.line = t.line[:0]
	t.cursorInLine = 0
	t.returned = false
	t.mu.Unlock()
	close(done)

	return line, nil
}
