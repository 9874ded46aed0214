//go:build unix && !linux

package fdbridge

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// NewPipe creates a close-on-exec pipe.
func NewPipe() (r, w int, err error) {
	var p [2]int
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p[0], p[1], nil
}

func dupOnto(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}
