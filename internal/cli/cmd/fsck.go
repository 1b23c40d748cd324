package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/pcoslab/pcos/internal/cli"
	"github.com/pcoslab/pcos/internal/fsimage"
	"github.com/pcoslab/pcos/internal/log"
)

// Fsck walks a file-system image's directory entries and inode data-block chains, reporting any
// dentry, inode, or block-index reference that falls outside the image's own bounds.
func Fsck() cli.Command {
	f := &fsck{fs: flag.NewFlagSet("fsck", flag.ExitOnError)}
	f.fs.BoolVar(&f.quiet, "quiet", false, "suppress the progress bar")

	return f
}

type fsck struct {
	fs    *flag.FlagSet
	quiet bool
}

func (*fsck) Description() string { return "check a file-system image for consistency" }

func (f *fsck) FlagSet() *cli.FlagSet { return f.fs }

func (*fsck) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `fsck [-quiet] <fsimage>

Walks every directory entry and inode in the image, reporting corruption.`)

	return err
}

func (f *fsck) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		fmt.Fprintln(out, "fsck: expected exactly one fsimage path")
		return 1
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("fsck: reading image", "err", err)
		return 1
	}

	img, err := fsimage.Open(raw)
	if err != nil {
		logger.Error("fsck: opening image", "err", err)
		return 1
	}

	var (
		bar    *progressbar.ProgressBar
		issues []string
	)

	total := int64(img.DirCount() + img.InodeCount())
	if f.quiet {
		bar = progressbar.DefaultSilent(total)
	} else {
		bar = progressbar.Default(total, "fsck")
	}

	for i := uint32(0); i < img.DirCount(); i++ {
		d, err := img.ReadDentryByIndex(i)
		if err != nil {
			issues = append(issues, fmt.Sprintf("dentry %d: %v", i, err))
		} else if _, err := img.Inode(d.Inode); err != nil && d.FileType == fsimage.TypeRegular {
			issues = append(issues, fmt.Sprintf("dentry %d (%s): %v", i, d.FileName(), err))
		}

		_ = bar.Add(1)
	}

	for i := uint32(0); i < img.InodeCount(); i++ {
		inode, err := img.Inode(i)
		if err != nil {
			issues = append(issues, fmt.Sprintf("inode %d: %v", i, err))
			_ = bar.Add(1)
			continue
		}

		issues = append(issues, f.checkBlocks(i, inode, img.DataBlockCount())...)

		_ = bar.Add(1)
	}

	fmt.Fprintln(out)

	if len(issues) == 0 {
		fmt.Fprintln(out, "fsck: clean")
		return 0
	}

	for _, issue := range issues {
		fmt.Fprintln(out, issue)
	}

	fmt.Fprintf(out, "fsck: %d issue(s) found\n", len(issues))

	return 1
}

func (*fsck) checkBlocks(inodeIdx uint32, inode fsimage.Inode, numDataBlocks uint32) []string {
	var issues []string

	numBlocks := (inode.Length + fsimage.BlockSize - 1) / fsimage.BlockSize
	if numBlocks > fsimage.MaxDataBlocks {
		issues = append(issues, fmt.Sprintf("inode %d: length %d needs more than %d blocks", inodeIdx, inode.Length, fsimage.MaxDataBlocks))
		return issues
	}

	for b := uint32(0); b < numBlocks; b++ {
		if inode.Blocks[b] >= numDataBlocks {
			issues = append(issues, fmt.Sprintf("inode %d: block %d references data block %d, out of %d", inodeIdx, b, inode.Blocks[b], numDataBlocks))
		}
	}

	return issues
}
