// cmd/pcos is the command-line interface to pcos, a simulated protected-mode kernel.
package main

import (
	"context"
	"os"

	"github.com/pcoslab/pcos/internal/cli"
	"github.com/pcoslab/pcos/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Run(),
	cmd.Fsck(),
}

func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
