// Package console models the VGA-style text framebuffer: an 80x25 grid of glyph+attribute cells,
// a hardware cursor, scrolling, and per-terminal shadow framebuffers that can be swapped in and
// out of "visible" without losing their contents.
package console

import "fmt"

// Rows and Cols are the dimensions of the text-mode framebuffer.
const (
	Rows = 25
	Cols = 80
)

// Attr packs foreground/background colour the way a VGA attribute byte does: low nibble
// foreground, high nibble background.
type Attr uint8

// DefaultAttr is light-grey on black, the conventional VGA text-mode reset value.
const DefaultAttr Attr = 0x07

// NewAttr packs a foreground/background pair into an attribute byte.
func NewAttr(fg, bg uint8) Attr {
	return Attr(fg&0x0f) | Attr(bg&0x0f)<<4
}

// Cell is one character position in the framebuffer.
type Cell struct {
	Glyph byte
	Attr  Attr
}

// Framebuffer is a full screen's worth of cells, copyable by value so it can be snapshotted and
// restored wholesale on a terminal switch.
type Framebuffer [Rows][Cols]Cell

// Screen is a single text console: a framebuffer plus the cursor and attribute state the kernel's
// console driver maintains alongside it.
type Screen struct {
	fb     Framebuffer
	cursor Point
	attr   Attr
}

// Point is a cursor position. X is the column, Y is the row.
type Point struct {
	X, Y int
}

// NewScreen creates a blank screen with the cursor at the origin and the default attribute.
func NewScreen() *Screen {
	s := &Screen{attr: DefaultAttr}
	s.Clear()

	return s
}

// Clear blanks every cell and homes the cursor.
func (s *Screen) Clear() {
	for y := range s.fb {
		for x := range s.fb[y] {
			s.fb[y][x] = Cell{Glyph: ' ', Attr: s.attr}
		}
	}

	s.cursor = Point{}
}

// SetAttr changes the attribute used for subsequently written cells.
func (s *Screen) SetAttr(a Attr) { s.attr = a }

// Attr returns the screen's current write attribute.
func (s *Screen) Attr() Attr { return s.attr }

// Cursor returns the saved cursor position.
func (s *Screen) Cursor() Point { return s.cursor }

// SetCursor moves the cursor, clamping it within the visible grid per the invariant that a
// terminal's cursor always lies within 80x25.
func (s *Screen) SetCursor(p Point) {
	if p.X < 0 {
		p.X = 0
	} else if p.X >= Cols {
		p.X = Cols - 1
	}

	if p.Y < 0 {
		p.Y = 0
	} else if p.Y >= Rows {
		p.Y = Rows - 1
	}

	s.cursor = p
}

// PutChar writes one character cell at the cursor and advances it, scrolling and wrapping lines
// as needed. A newline moves to the start of the next line (scrolling if already on the last
// row); a backspace moves the cursor left without erasing, matching the line editor's own erase
// handling.
func (s *Screen) PutChar(c byte) {
	switch c {
	case '\n':
		s.newline()
	case '\r':
		s.cursor.X = 0
	case '\b':
		if s.cursor.X > 0 {
			s.cursor.X--
		}
	default:
		s.fb[s.cursor.Y][s.cursor.X] = Cell{Glyph: c, Attr: s.attr}
		s.cursor.X++

		if s.cursor.X >= Cols {
			s.newline()
		}
	}
}

func (s *Screen) newline() {
	s.cursor.X = 0

	if s.cursor.Y == Rows-1 {
		s.Scroll()
	} else {
		s.cursor.Y++
	}
}

// Scroll shifts every row up by one, blanking the bottom row.
func (s *Screen) Scroll() {
	for y := 0; y < Rows-1; y++ {
		s.fb[y] = s.fb[y+1]
	}

	for x := range s.fb[Rows-1] {
		s.fb[Rows-1][x] = Cell{Glyph: ' ', Attr: s.attr}
	}
}

// Snapshot returns a copy of the framebuffer, suitable for stashing away while this screen is not
// the visible one. The cursor and attribute are not part of the copy.
func (s *Screen) Snapshot() Framebuffer {
	return s.fb
}

// Restore replaces the framebuffer wholesale, e.g. when a shadow page is copied back onto the
// physical VGA buffer during a terminal switch.
func (s *Screen) Restore(fb Framebuffer) {
	s.fb = fb
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
