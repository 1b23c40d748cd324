package syscall

import (
	"context"

	"github.com/pcoslab/pcos/internal/process"
)

// Shell is a minimal program body for the "shell" binary: it reads one line from stdin and
// halts with status 0 on "exit", otherwise treats the line as a command to execute and loops.
// It stands in for the real root shell's command dispatch, which isn't in scope here -- there's
// no ISA to load another user binary's actual machine code into, only registered program bodies.
func Shell(ctx context.Context, k *Syscalls, proc *process.PCB) {
	const prompt = "391OS> "

	buf := make([]byte, 128)

	for {
		if ctx.Err() != nil {
			k.Halt(proc, 0)
			return
		}

		n, _ := k.Trap(ctx, proc, CallWrite, Args{FD: process.FDStdout, Buf: []byte(prompt)})
		if n < 0 {
			k.Halt(proc, 0)
			return
		}

		n, _ = k.Trap(ctx, proc, CallRead, Args{FD: process.FDStdin, Buf: buf})
		if n < 0 {
			k.Halt(proc, 0)
			return
		}

		line := trimNewline(string(buf[:n]))

		switch line {
		case "exit":
			k.Halt(proc, 0)
			return
		case "":
			continue
		default:
			if _, err := k.Trap(ctx, proc, CallExecute, Args{Command: line, TID: InheritTerminal}); err != nil {
				k.Trap(ctx, proc, CallWrite, Args{FD: process.FDStdout, Buf: []byte(err.Error() + "\n")})
			}
		}
	}
}

// Hello is a tiny demonstration program body: it writes a greeting and halts successfully.
func Hello(ctx context.Context, k *Syscalls, proc *process.PCB) {
	k.Trap(ctx, proc, CallWrite, Args{FD: process.FDStdout, Buf: []byte("hello, world\n")})
	k.Halt(proc, 0)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}

	return s
}
