package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcoslab/pcos/internal/cli"
	"github.com/pcoslab/pcos/internal/config"
	"github.com/pcoslab/pcos/internal/kernel"
	"github.com/pcoslab/pcos/internal/log"
	pcossys "github.com/pcoslab/pcos/internal/syscall"
	"github.com/pcoslab/pcos/internal/tty"
)

// Run boots the kernel: loads a boot configuration and file-system image, wires up every
// subsystem, and drives the scheduler until interrupted.
func Run() cli.Command {
	r := &runner{fs: flag.NewFlagSet("run", flag.ExitOnError)}
	r.fs.StringVar(&r.configPath, "config", "", "path to a boot configuration YAML file")
	r.fs.StringVar(&r.fsimagePath, "fsimage", "", "path to a file-system image, overriding the config")
	r.fs.DurationVar(&r.duration, "duration", 0, "stop after this long; 0 runs until interrupted")

	return r
}

type runner struct {
	fs *flag.FlagSet

	configPath  string
	fsimagePath string
	duration    time.Duration
}

func (*runner) Description() string { return "boot the kernel" }

func (r *runner) FlagSet() *cli.FlagSet { return r.fs }

func (*runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run [-config boot.yaml] [-fsimage fsimage.bin] [-duration 10s]

Boots the kernel against a file-system image and drives its scheduler.`)

	return err
}

func (r *runner) Run(ctx context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	cfg, err := r.loadConfig()
	if err != nil {
		logger.Error("run: loading configuration", "err", err)
		return 1
	}

	if r.fsimagePath != "" {
		cfg.FSImage = r.fsimagePath
	}

	raw, err := os.ReadFile(cfg.FSImage)
	if err != nil {
		logger.Error("run: reading file-system image", "err", err)
		return 1
	}

	k, err := kernel.New(cfg, raw)
	if err != nil {
		logger.Error("run: constructing kernel", "err", err)
		return 1
	}

	k.Register("shell", pcossys.Shell)
	k.Register("hello", pcossys.Hello)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.duration)
		defer cancel()
	}

	console, consErr := tty.NewConsole(os.Stdin, os.Stdout)
	if consErr == nil {
		defer console.Restore()

		go func() {
			if err := console.Run(ctx, k.Terminals); err != nil {
				logger.Debug("run: console bridge stopped", "err", err)
			}
		}()
	} else if !errors.Is(consErr, tty.ErrNoTTY) {
		logger.Warn("run: console unavailable", "err", consErr)
	} else {
		fmt.Fprintln(out, "run: no tty attached, running headless")
	}

	if err := k.Boot(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("run: kernel stopped", "err", err)
		return 1
	}

	return 0
}

func (r *runner) loadConfig() (config.Boot, error) {
	if r.configPath == "" {
		return config.Default(), nil
	}

	return config.Load(r.configPath)
}
