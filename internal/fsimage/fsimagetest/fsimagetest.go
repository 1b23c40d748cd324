// Package fsimagetest builds small in-memory file-system images for tests, standing in for a
// real disk image the way other packages in this tree keep small in-memory fixtures instead of
// loading fixtures off disk.
package fsimagetest

import (
	"bytes"
	"encoding/binary"

	"github.com/pcoslab/pcos/internal/fsimage"
)

// Builder assembles an image one file at a time.
type Builder struct {
	dentries []fsimage.Dentry
	inodes   []fsimage.Inode
	blocks   [][]byte
}

// New creates an empty builder.
func New() *Builder { return &Builder{} }

// AddFile records a file's contents, splitting it into data blocks, and returns its inode index.
func (b *Builder) AddFile(name string, typ uint32, data []byte) (inode uint32) {
	inode = uint32(len(b.inodes))

	var ino fsimage.Inode
	ino.Length = uint32(len(data))

	for off := 0; off < len(data); off += fsimage.BlockSize {
		end := off + fsimage.BlockSize
		if end > len(data) {
			end = len(data)
		}

		block := make([]byte, fsimage.BlockSize)
		copy(block, data[off:end])

		blockIdx := uint32(len(b.blocks))
		ino.Blocks[off/fsimage.BlockSize] = blockIdx
		b.blocks = append(b.blocks, block)
	}

	b.inodes = append(b.inodes, ino)

	var d fsimage.Dentry
	copy(d.Name[:], name)
	d.FileType = typ
	d.Inode = inode
	b.dentries = append(b.dentries, d)

	return inode
}

// Build serializes the accumulated files into a raw image buffer that fsimage.Open can parse.
func (b *Builder) Build() []byte {
	buf := &bytes.Buffer{}

	boot := struct {
		DirCount uint32
		InodeCnt uint32
		DataCnt  uint32
		Version  [8]byte
		Reserved [44]byte
		Dentries [fsimage.MaxDentries]fsimage.Dentry
	}{
		DirCount: uint32(len(b.dentries)),
		InodeCnt: uint32(len(b.inodes)),
		DataCnt:  uint32(len(b.blocks)),
	}
	copy(boot.Version[:], fsimage.Format)
	copy(boot.Dentries[:], b.dentries)

	_ = binary.Write(buf, binary.LittleEndian, boot)

	for _, ino := range b.inodes {
		_ = binary.Write(buf, binary.LittleEndian, ino)
	}

	for _, block := range b.blocks {
		buf.Write(block)
	}

	return buf.Bytes()
}

// ELFLike builds a minimal blob passing the kernel's binary-header validation: the four magic
// bytes, followed by a little-endian entry-point address at bytes 24-27.
func ELFLike(entry uint32, size int) []byte {
	if size < 28 {
		size = 28
	}

	b := make([]byte, size)
	copy(b, []byte{0x7f, 'E', 'L', 'F'})
	binary.LittleEndian.PutUint32(b[24:28], entry)

	return b
}
