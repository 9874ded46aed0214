//go:build linux

package fdbridge

import "golang.org/x/sys/unix"

// NewPipe creates a close-on-exec pipe.
func NewPipe() (r, w int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// dupOnto uses dup3 because dup2 is missing on some linux architectures.
func dupOnto(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup3(oldfd, newfd, 0)
}
