package file_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pcoslab/pcos/internal/file"
	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/fsimage/fsimagetest"
	"github.com/pcoslab/pcos/internal/rtc"
	"github.com/pcoslab/pcos/internal/tty"
)

func TestRegularFileReadIsSequential(t *testing.T) {
	b := fsimagetest.New()
	inode := b.AddFile("msg", fsimage.TypeRegular, []byte("hello, world"))

	img, err := fsimage.Open(b.Build())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	f := file.OpenRegular(img, inode)

	buf := make([]byte, 5)

	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(buf[:n]) != "hello" {
		t.Fatalf("read %q, want %q", buf[:n], "hello")
	}

	n, err = f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(buf[:n]) != ", wor" {
		t.Fatalf("read %q, want %q", buf[:n], ", wor")
	}
}

func TestRegularFileRejectsWrites(t *testing.T) {
	b := fsimagetest.New()
	inode := b.AddFile("msg", fsimage.TypeRegular, []byte("x"))

	img, _ := fsimage.Open(b.Build())
	f := file.OpenRegular(img, inode)

	if _, err := f.Write([]byte("y")); !errors.Is(err, file.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestRegularFileClosedReadFails(t *testing.T) {
	b := fsimagetest.New()
	inode := b.AddFile("msg", fsimage.TypeRegular, []byte("x"))

	img, _ := fsimage.Open(b.Build())
	f := file.OpenRegular(img, inode)

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, file.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDirectoryReadsOneNamePerCall(t *testing.T) {
	b := fsimagetest.New()
	b.AddFile("a", fsimage.TypeRegular, []byte("1"))
	b.AddFile("b", fsimage.TypeRegular, []byte("2"))

	img, _ := fsimage.Open(b.Build())
	d := file.OpenDirectory(img)

	buf := make([]byte, 32)

	n, err := d.Read(buf)
	if err != nil || string(buf[:n]) != "a" {
		t.Fatalf("first read = %q, %v; want a", buf[:n], err)
	}

	n, err = d.Read(buf)
	if err != nil || string(buf[:n]) != "b" {
		t.Fatalf("second read = %q, %v; want b", buf[:n], err)
	}

	n, err = d.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("third read = %d, %v; want 0, nil (EOF)", n, err)
	}
}

func TestRTCFileReadBlocksUntilTick(t *testing.T) {
	clock := rtc.NewClock()
	f := file.OpenRTC(context.Background(), clock)

	done := make(chan error, 1)

	go func() {
		_, err := f.Read(nil)
		done <- err
	}()

	// Let the read record its starting tick before any ticks arrive; it counts from that point.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < rtc.HWFrequency/rtc.DefaultRate; i++ {
		clock.Tick()
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rtc read to unblock")
	}
}

func TestRTCFileWriteSetsRate(t *testing.T) {
	clock := rtc.NewClock()
	f := file.OpenRTC(context.Background(), clock)

	rate := []byte{8, 0, 0, 0}

	n, err := f.Write(rate)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if n != 4 {
		t.Fatalf("wrote %d bytes, want 4", n)
	}
}

func TestRTCFileWriteRejectsShortBuffer(t *testing.T) {
	f := file.OpenRTC(context.Background(), rtc.NewClock())

	if _, err := f.Write([]byte{1, 2}); err == nil {
		t.Fatal("expected error for a short rate buffer")
	}
}

func TestTerminalInAppendsNewline(t *testing.T) {
	mux := tty.NewMultiplexer()
	term := mux.Terminal(0)

	for _, c := range "go" {
		term.AppendLine(byte(c))
	}

	in := file.OpenTerminalIn(context.Background(), term)

	done := make(chan struct{})

	go func() {
		term.Enter()
		close(done)
	}()

	<-done

	buf := make([]byte, 16)

	n, err := in.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(buf[:n]) != "go\n" {
		t.Fatalf("read %q, want %q", buf[:n], "go\n")
	}
}

func TestTerminalOutEchoesToScreen(t *testing.T) {
	mux := tty.NewMultiplexer()
	term := mux.Terminal(0)

	out := file.OpenTerminalOut(term)

	n, err := out.Write([]byte("hi"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if n != 2 {
		t.Fatalf("wrote %d bytes, want 2", n)
	}

	fb := term.Snapshot()
	if fb[0][0].Glyph != 'h' || fb[0][1].Glyph != 'i' {
		t.Fatalf("unexpected screen contents: %c%c", fb[0][0].Glyph, fb[0][1].Glyph)
	}
}

func TestSoundFileAcceptsWritesOnly(t *testing.T) {
	s := file.OpenSound()

	if _, err := s.Read(nil); !errors.Is(err, file.ErrWriteOnly) {
		t.Fatalf("expected ErrWriteOnly, got %v", err)
	}

	n, err := s.Write([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if n != 3 {
		t.Fatalf("wrote %d bytes, want 3", n)
	}
}
