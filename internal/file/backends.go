package file

import (
	"context"
	"errors"

	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/rtc"
	"github.com/pcoslab/pcos/internal/tty"
)

// RegularFile reads a flat file out of the read-only file-system image. Writes are rejected: the
// image is never mutated at runtime.
type RegularFile struct {
	img    *fsimage.Image
	inode  uint32
	offset uint32
	closed bool
}

// OpenRegular opens inode for reading, starting at offset zero.
func OpenRegular(img *fsimage.Image, inode uint32) *RegularFile {
	return &RegularFile{img: img, inode: inode}
}

func (f *RegularFile) Read(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	n, err := f.img.ReadData(f.inode, f.offset, buf)
	if err != nil {
		return 0, err
	}

	f.offset += uint32(n)

	return n, nil
}

func (f *RegularFile) Write(buf []byte) (int, error) {
	return 0, ErrReadOnly
}

func (f *RegularFile) Close() error {
	if f.closed {
		return ErrClosed
	}

	f.closed = true

	return nil
}

// Directory reads one directory-entry name per call, advancing an internal cursor, matching the
// original kernel's directory_read convention (one dentry name per read, "" once exhausted).
type Directory struct {
	img      *fsimage.Image
	position uint32
	closed   bool
}

// OpenDirectory opens the root directory for sequential reading.
func OpenDirectory(img *fsimage.Image) *Directory {
	return &Directory{img: img}
}

func (d *Directory) Read(buf []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}

	if d.position >= d.img.DirCount() {
		return 0, nil
	}

	dentry, err := d.img.ReadDentryByIndex(d.position)
	if err != nil {
		return 0, err
	}

	d.position++

	name := dentry.FileName()
	n := copy(buf, name)

	return n, nil
}

func (d *Directory) Write(buf []byte) (int, error) {
	return 0, ErrReadOnly
}

func (d *Directory) Close() error {
	if d.closed {
		return ErrClosed
	}

	d.closed = true

	return nil
}

// RTCFile is an open handle on the virtualized real-time clock: reads block until the next tick
// at the handle's current rate, writes reprogram that rate.
type RTCFile struct {
	handle *rtc.Handle
	ctx    context.Context
	closed bool
}

// OpenRTC opens a new RTC handle at the default rate, bound to ctx for cancellation of blocking
// reads.
func OpenRTC(ctx context.Context, clock *rtc.Clock) *RTCFile {
	return &RTCFile{handle: rtc.Open(clock), ctx: ctx}
}

func (f *RTCFile) Read(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	if err := f.handle.Wait(f.ctx); err != nil {
		return 0, err
	}

	return 0, nil
}

func (f *RTCFile) Write(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	if len(buf) < 4 {
		return 0, errors.New("rtc: write requires a 4-byte rate")
	}

	rate := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24

	if err := f.handle.SetRate(rate); err != nil {
		return 0, err
	}

	return 4, nil
}

func (f *RTCFile) Close() error {
	if f.closed {
		return ErrClosed
	}

	f.closed = true

	return nil
}

// TerminalIn is the stdin backend: reads block on the bound terminal's line discipline.
type TerminalIn struct {
	term   *tty.Terminal
	ctx    context.Context
	closed bool
}

// OpenTerminalIn binds a stdin descriptor to term.
func OpenTerminalIn(ctx context.Context, term *tty.Terminal) *TerminalIn {
	return &TerminalIn{term: term, ctx: ctx}
}

func (f *TerminalIn) Read(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	line, err := f.term.ReadLine(f.ctx)
	if err != nil {
		return 0, err
	}

	line += "\n"
	n := copy(buf, line)

	return n, nil
}

func (f *TerminalIn) Write(buf []byte) (int, error) {
	return 0, ErrWriteOnly
}

func (f *TerminalIn) Close() error {
	if f.closed {
		return ErrClosed
	}

	f.closed = true

	return nil
}

// TerminalOut is the stdout backend: writes echo to the bound terminal's screen.
type TerminalOut struct {
	term   *tty.Terminal
	closed bool
}

// OpenTerminalOut binds a stdout descriptor to term.
func OpenTerminalOut(term *tty.Terminal) *TerminalOut {
	return &TerminalOut{term: term}
}

func (f *TerminalOut) Read(buf []byte) (int, error) {
	return 0, ErrReadOnly
}

func (f *TerminalOut) Write(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	for _, c := range buf {
		f.term.PutChar(c)
	}

	return len(buf), nil
}

func (f *TerminalOut) Close() error {
	if f.closed {
		return ErrClosed
	}

	f.closed = true

	return nil
}

// SoundFile is a minimal stub for the sound device: it accepts a frequency write and discards it.
// There is no audio backend in this simulation; wiring the syscall through a File keeps fd
// allocation and the read/write dispatch uniform even though nothing audible happens.
type SoundFile struct {
	closed bool
}

// OpenSound opens the sound device file.
func OpenSound() *SoundFile { return &SoundFile{} }

func (f *SoundFile) Read(buf []byte) (int, error) {
	return 0, ErrWriteOnly
}

func (f *SoundFile) Write(buf []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}

	return len(buf), nil
}

func (f *SoundFile) Close() error {
	if f.closed {
		return ErrClosed
	}

	f.closed = true

	return nil
}
