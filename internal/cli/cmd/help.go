package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/pcoslab/pcos/internal/cli"
	"github.com/pcoslab/pcos/internal/log"
)

// Help prints a summary of every registered command.
func Help(commands []cli.Command) cli.Command {
	return &help{commands: commands, fs: flag.NewFlagSet("help", flag.ExitOnError)}
}

type help struct {
	commands []cli.Command
	fs       *flag.FlagSet
}

func (*help) Description() string { return "print command help" }

func (h *help) FlagSet() *cli.FlagSet { return h.fs }

func (h *help) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, "pcos <command> [flags] [args]")
	return err
}

func (h *help) Run(_ context.Context, _ []string, out io.Writer, _ *log.Logger) int {
	fmt.Fprintln(out, "pcos: a small protected-mode kernel simulator")
	fmt.Fprintln(out)

	for _, c := range h.commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.FlagSet().Name(), c.Description())
	}

	return 0
}
