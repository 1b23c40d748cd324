package console_test

import (
	"testing"

	"github.com/pcoslab/pcos/internal/console"
)

func TestPutCharAdvancesCursor(t *testing.T) {
	s := console.NewScreen()

	s.PutChar('a')
	s.PutChar('b')

	if s.Cursor() != (console.Point{X: 2, Y: 0}) {
		t.Fatalf("cursor = %v, want (2,0)", s.Cursor())
	}

	fb := s.Snapshot()
	if fb[0][0].Glyph != 'a' || fb[0][1].Glyph != 'b' {
		t.Fatalf("unexpected framebuffer contents: %+v", fb[0][:2])
	}
}

func TestNewlineWrapsToNextRow(t *testing.T) {
	s := console.NewScreen()

	s.PutChar('x')
	s.PutChar('\n')

	if s.Cursor() != (console.Point{X: 0, Y: 1}) {
		t.Fatalf("cursor = %v, want (0,1)", s.Cursor())
	}
}

func TestLineWrapAtLastColumn(t *testing.T) {
	s := console.NewScreen()

	for i := 0; i < console.Cols; i++ {
		s.PutChar('x')
	}

	if s.Cursor() != (console.Point{X: 0, Y: 1}) {
		t.Fatalf("cursor = %v, want (0,1) after wrapping", s.Cursor())
	}
}

func TestScrollOnLastRow(t *testing.T) {
	s := console.NewScreen()
	s.SetCursor(console.Point{X: 0, Y: console.Rows - 1})
	s.PutChar('z')

	s.PutChar('\n')

	if s.Cursor() != (console.Point{X: 0, Y: console.Rows - 1}) {
		t.Fatalf("cursor = %v, want bottom row to stay put after scroll", s.Cursor())
	}

	fb := s.Snapshot()
	if fb[console.Rows-2][0].Glyph != 'z' {
		t.Fatalf("expected 'z' to have scrolled up one row")
	}
}

func TestSetCursorClampsToGrid(t *testing.T) {
	s := console.NewScreen()

	s.SetCursor(console.Point{X: -1, Y: -1})
	if s.Cursor() != (console.Point{X: 0, Y: 0}) {
		t.Fatalf("cursor = %v, want clamped to origin", s.Cursor())
	}

	s.SetCursor(console.Point{X: console.Cols + 5, Y: console.Rows + 5})
	if s.Cursor() != (console.Point{X: console.Cols - 1, Y: console.Rows - 1}) {
		t.Fatalf("cursor = %v, want clamped to bottom-right", s.Cursor())
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := console.NewScreen()
	s.PutChar('q')

	snap := s.Snapshot()

	s.Clear()
	if s.Snapshot()[0][0].Glyph == 'q' {
		t.Fatal("expected Clear to blank the screen")
	}

	s.Restore(snap)
	if s.Snapshot()[0][0].Glyph != 'q' {
		t.Fatal("expected Restore to bring back the snapshot")
	}
}
