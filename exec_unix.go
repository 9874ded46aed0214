//go:build unix

package fdbridge

import (
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
)

// setSignalsForChannel configures the channel to receive SIGINT and SIGTERM.
func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
}

func stopSignals(c chan os.Signal) {
	signal.Stop(c)
}

// setExtraFiles attaches extra files to the command. On Unix they start at
// descriptor 3, after stdin, stdout and stderr.
func setExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) {
	cmd.ExtraFiles = extraFiles
}

// childDescriptors returns the descriptor numbers n extra files get in the
// child.
func childDescriptors(n int) []string {
	retv := make([]string, n)
	for i := range retv {
		retv[i] = strconv.Itoa(i + 3)
	}
	return retv
}

// exitStatus maps a finished child to a shell-style exit code: the exit
// status, or 128 plus the signal number for a signalled child.
func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return ExitStartFailed
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
