// Package fsimage implements the read-only file-system image: a boot block, an inode table, and
// a data-block region laid out contiguously, exactly as the on-disk format in the kernel's
// original student-distrib file system does. There is no write path; the image is built once
// (by a fixture in tests, or loaded from disk by cmd/pcos) and only ever walked.
package fsimage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/mod/semver"
)

// On-disk sizes, in bytes.
const (
	BlockSize      = 4096
	MaxDentries    = 63
	MaxDataBlocks  = 1023
	DentryNameSize = 32
)

// File types recorded in a directory entry.
const (
	TypeRTC     uint32 = 0
	TypeDir     uint32 = 1
	TypeRegular uint32 = 2
)

// Format is the image format tag this kernel understands. Images whose embedded tag is a newer
// major version are rejected by Open rather than silently misparsed.
const Format = "v1.0.0"

// Dentry is a 64-byte on-disk directory entry.
type Dentry struct {
	Name     [DentryNameSize]byte
	FileType uint32
	Inode    uint32
	_        [24]byte
}

// FileName returns the entry's name, trimmed of trailing NUL padding. Names are not required to
// be NUL-terminated if they fill all 32 bytes.
func (d Dentry) FileName() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}

	return string(d.Name[:n])
}

// bootBlockOnDisk is the 4 KiB boot block layout.
type bootBlockOnDisk struct {
	DirCount  uint32
	InodeCnt  uint32
	DataCnt   uint32
	Version   [8]byte
	_         [44]byte
	Dentries  [MaxDentries]Dentry
}

// Inode is a 4 KiB on-disk inode: a byte length followed by up to 1023 data-block indices.
type Inode struct {
	Length uint32
	Blocks [MaxDataBlocks]uint32
}

var (
	ErrBadImage      = errors.New("fsimage: malformed image")
	ErrNotFound      = errors.New("fsimage: entry not found")
	ErrBadInode      = errors.New("fsimage: inode index out of range")
	ErrBadOffset     = errors.New("fsimage: offset beyond end of file")
	ErrBadDataBlock  = errors.New("fsimage: data block index out of range")
	ErrIncompatible  = errors.New("fsimage: incompatible image format")
)

// Image is a parsed, read-only file-system image.
type Image struct {
	boot   bootBlockOnDisk
	inodes []Inode
	data   []byte // Concatenated data blocks, BlockSize each.
}

// Open parses a raw image buffer: the boot block, then InodeCnt inodes, then the data-block
// region, all contiguous starting at offset 0.
func Open(raw []byte) (*Image, error) {
	if len(raw) < BlockSize {
		return nil, fmt.Errorf("%w: image smaller than one block", ErrBadImage)
	}

	var boot bootBlockOnDisk
	if err := binary.Read(bytes.NewReader(raw[:BlockSize]), binary.LittleEndian, &boot); err != nil {
		return nil, fmt.Errorf("%w: boot block: %w", ErrBadImage, err)
	}

	if err := checkFormat(boot.Version); err != nil {
		return nil, err
	}

	if boot.DirCount > MaxDentries {
		return nil, fmt.Errorf("%w: dir count %d exceeds %d", ErrBadImage, boot.DirCount, MaxDentries)
	}

	inodesEnd := BlockSize + int(boot.InodeCnt)*BlockSize
	if len(raw) < inodesEnd {
		return nil, fmt.Errorf("%w: image truncated before inode table", ErrBadImage)
	}

	inodes := make([]Inode, boot.InodeCnt)

	for i := range inodes {
		start := BlockSize + i*BlockSize
		if err := binary.Read(bytes.NewReader(raw[start:start+BlockSize]), binary.LittleEndian, &inodes[i]); err != nil {
			return nil, fmt.Errorf("%w: inode %d: %w", ErrBadImage, i, err)
		}
	}

	dataEnd := inodesEnd + int(boot.DataCnt)*BlockSize
	if len(raw) < dataEnd {
		return nil, fmt.Errorf("%w: image truncated before data region", ErrBadImage)
	}

	return &Image{
		boot:   boot,
		inodes: inodes,
		data:   raw[inodesEnd:dataEnd],
	}, nil
}

func checkFormat(tag [8]byte) error {
	n := bytes.IndexByte(tag[:], 0)
	if n < 0 {
		n = len(tag)
	}

	v := string(tag[:n])
	if v == "" {
		return nil // Older fixture images carry no tag; treat as compatible.
	}

	if !semver.IsValid(v) {
		return fmt.Errorf("%w: unparseable version tag %q", ErrIncompatible, v)
	}

	if semver.Compare(semver.Major(v), semver.Major(Format)) > 0 {
		return fmt.Errorf("%w: image is format %s, kernel understands up to %s", ErrIncompatible, v, Format)
	}

	return nil
}

// ReadDentryByName linearly scans the (up to 63) directory entries for one whose name matches.
// Equal post-padding length is a prerequisite for the comparison, matching the original kernel's
// strncmp-by-fixed-length behaviour.
func (img *Image) ReadDentryByName(name string) (Dentry, error) {
	if name == "" {
		return Dentry{}, fmt.Errorf("%w: empty name", ErrNotFound)
	}

	for i := uint32(0); i < img.boot.DirCount; i++ {
		d := img.boot.Dentries[i]
		if d.FileName() == name {
			return d, nil
		}
	}

	return Dentry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ReadDentryByIndex returns the i-th directory entry.
func (img *Image) ReadDentryByIndex(i uint32) (Dentry, error) {
	if i >= img.boot.DirCount {
		return Dentry{}, fmt.Errorf("%w: index %d", ErrNotFound, i)
	}

	return img.boot.Dentries[i], nil
}

// DirCount returns the number of directory entries in the image.
func (img *Image) DirCount() uint32 { return img.boot.DirCount }

// InodeCount returns the number of inodes in the image's inode table.
func (img *Image) InodeCount() uint32 { return uint32(len(img.inodes)) }

// DataBlockCount returns the number of data blocks in the image's data region.
func (img *Image) DataBlockCount() uint32 { return uint32(len(img.data) / BlockSize) }

// Inode returns the inode at index i, bounds-checked.
func (img *Image) Inode(i uint32) (Inode, error) {
	if i >= uint32(len(img.inodes)) {
		return Inode{}, fmt.Errorf("%w: %d", ErrBadInode, i)
	}

	return img.inodes[i], nil
}

// ReadData walks inode i's data-block index array starting at offset, copying into buf until buf
// is full or end-of-file. It returns an error unconditionally for a bad inode index, even for a
// zero-length read; it returns 0 (and does not touch buf) for a zero-length read against a valid
// inode; it returns an error if offset lies beyond the file's declared length, and returns an
// error if the walk ever lands on a data-block index beyond the image's data-block count.
func (img *Image) ReadData(inodeIdx uint32, offset uint32, buf []byte) (int, error) {
	inode, err := img.Inode(inodeIdx)
	if err != nil {
		return 0, err
	}

	if len(buf) == 0 {
		return 0, nil
	}

	if offset > inode.Length {
		return 0, fmt.Errorf("%w: offset %d > length %d", ErrBadOffset, offset, inode.Length)
	}

	if offset == inode.Length {
		return 0, nil
	}

	numDataBlocks := uint32(len(img.data) / BlockSize)

	read := 0
	pos := offset

	for read < len(buf) && pos < inode.Length {
		blockNum := pos / BlockSize
		blockOff := pos % BlockSize

		if blockNum >= MaxDataBlocks {
			return read, fmt.Errorf("%w: block index %d exceeds inode capacity", ErrBadDataBlock, blockNum)
		}

		blockIdx := inode.Blocks[blockNum]
		if blockIdx >= numDataBlocks {
			return read, fmt.Errorf("%w: block %d out of %d", ErrBadDataBlock, blockIdx, numDataBlocks)
		}

		avail := BlockSize - blockOff
		remaining := inode.Length - pos

		n := uint32(len(buf) - read)
		if n > avail {
			n = avail
		}

		if n > remaining {
			n = remaining
		}

		src := img.data[blockIdx*BlockSize+blockOff : blockIdx*BlockSize+blockOff+n]
		copy(buf[read:], src)

		read += int(n)
		pos += n
	}

	return read, nil
}
