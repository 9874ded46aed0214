package jsrt

import (
	"io"

	"golang.org/x/sys/unix"
)

// FD reads and writes a raw descriptor number without taking ownership of
// it. Unlike *os.File it has no finalizer, so a descriptor registered by the
// host is never closed behind the host's back. Non-blocking descriptors are
// handled by polling.
type FD int

func (fd FD) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(int(fd), p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := fd.wait(unix.POLLIN); err != nil {
				return 0, err
			}
			continue
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (fd FD) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(int(fd), p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := fd.wait(unix.POLLOUT); err != nil {
				return written, err
			}
			continue
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

// Close closes the descriptor.
func (fd FD) Close() error {
	return unix.Close(int(fd))
}

func (fd FD) wait(events int16) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
