package fsimage_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/fsimage/fsimagetest"
)

func buildSample(t *testing.T) *fsimage.Image {
	t.Helper()

	b := fsimagetest.New()
	b.AddFile(".", fsimage.TypeDir, nil)
	b.AddFile("shell", fsimage.TypeRegular, fsimagetest.ELFLike(0x00400000, 64))
	b.AddFile("hello", fsimage.TypeRegular, []byte("hello, world\n"))

	img, err := fsimage.Open(b.Build())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return img
}

func TestReadDentryByName(t *testing.T) {
	img := buildSample(t)

	d, err := img.ReadDentryByName("hello")
	if err != nil {
		t.Fatalf("ReadDentryByName: %v", err)
	}

	if d.FileName() != "hello" || d.FileType != fsimage.TypeRegular {
		t.Fatalf("unexpected dentry: %+v", d)
	}

	if _, err := img.ReadDentryByName(""); err == nil {
		t.Fatal("expected error for empty name")
	}

	if _, err := img.ReadDentryByName("nope"); !errors.Is(err, fsimage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadDentryByIndex(t *testing.T) {
	img := buildSample(t)

	for i := uint32(0); i < img.DirCount(); i++ {
		if _, err := img.ReadDentryByIndex(i); err != nil {
			t.Fatalf("index %d: %v", i, err)
		}
	}

	if _, err := img.ReadDentryByIndex(img.DirCount()); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestReadDataBoundaries(t *testing.T) {
	img := buildSample(t)

	d, err := img.ReadDentryByName("hello")
	if err != nil {
		t.Fatal(err)
	}

	// Zero-length read returns 0 and does not touch buf.
	sentinel := []byte{0xaa, 0xaa}
	buf := append([]byte(nil), sentinel...)

	n, err := img.ReadData(d.Inode, 0, buf[:0])
	if err != nil || n != 0 {
		t.Fatalf("zero-len read: n=%d err=%v", n, err)
	}

	if !bytes.Equal(buf, sentinel) {
		t.Fatalf("zero-len read touched buf: %v", buf)
	}

	// Full read matches the original content.
	out := make([]byte, 64)

	n, err = img.ReadData(d.Inode, 0, out)
	if err != nil {
		t.Fatalf("full read: %v", err)
	}

	if string(out[:n]) != "hello, world\n" {
		t.Fatalf("unexpected content: %q", out[:n])
	}

	// Reading at EOF returns 0, nil.
	n, err = img.ReadData(d.Inode, uint32(n), out)
	if err != nil || n != 0 {
		t.Fatalf("eof read: n=%d err=%v", n, err)
	}

	// Reading beyond length is an error.
	if _, err := img.ReadData(d.Inode, 9999, out); !errors.Is(err, fsimage.ErrBadOffset) {
		t.Fatalf("expected ErrBadOffset, got %v", err)
	}

	// Bad inode index is an error.
	if _, err := img.ReadData(9999, 0, out); !errors.Is(err, fsimage.ErrBadInode) {
		t.Fatalf("expected ErrBadInode, got %v", err)
	}

	// Bad inode index is an error even for a zero-length read: the inode check runs before
	// the zero-length short-circuit, not after.
	if _, err := img.ReadData(9999, 0, out[:0]); !errors.Is(err, fsimage.ErrBadInode) {
		t.Fatalf("expected ErrBadInode for zero-length read, got %v", err)
	}
}

func TestReadDataAcrossBlocks(t *testing.T) {
	b := fsimagetest.New()

	var content strings.Builder
	for i := 0; i < fsimage.BlockSize+100; i++ {
		content.WriteByte(byte('a' + i%26))
	}

	b.AddFile("big", fsimage.TypeRegular, []byte(content.String()))

	img, err := fsimage.Open(b.Build())
	if err != nil {
		t.Fatal(err)
	}

	d, err := img.ReadDentryByName("big")
	if err != nil {
		t.Fatal(err)
	}

	out := make([]byte, fsimage.BlockSize+100)

	n, err := img.ReadData(d.Inode, 0, out)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}

	if n != len(out) || string(out) != content.String() {
		t.Fatalf("cross-block read mismatch: n=%d", n)
	}
}
