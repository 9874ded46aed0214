package fdbridge

import (
	"fmt"
	"strconv"
	"strings"
)

// FDScheme prefixes locators that carry a raw descriptor number.
const FDScheme = "fd://"

// FileDescriptor is a host-side carrier for a descriptor number. Hosts use it
// to move a descriptor around without wrapping it in an *os.File, which would
// close it when garbage collected.
type FileDescriptor struct {
	descriptor int
}

// NewFileDescriptor wraps fd. The carrier does not own the descriptor.
func NewFileDescriptor(fd int) *FileDescriptor {
	return &FileDescriptor{descriptor: fd}
}

// Valid reports whether the carrier holds a non-negative descriptor.
func (f *FileDescriptor) Valid() bool {
	return f != nil && f.descriptor >= 0
}

// Fd returns the carried descriptor, or -1 for a nil carrier.
func (f *FileDescriptor) Fd() uintptr {
	if f == nil {
		return ^uintptr(0)
	}
	return uintptr(f.descriptor)
}

// DescriptorInt returns the number held by fd.
func DescriptorInt(fd *FileDescriptor) (int, error) {
	if fd == nil {
		return -1, fmt.Errorf("%w: file descriptor must not be nil", ErrInvalidArgument)
	}
	return fd.descriptor, nil
}

// SetDescriptorInt overwrites the number held by fd and returns the
// previous one.
func SetDescriptorInt(fd *FileDescriptor, descriptor int) (int, error) {
	if fd == nil {
		return -1, fmt.Errorf("%w: file descriptor must not be nil", ErrInvalidArgument)
	}
	prev := fd.descriptor
	fd.descriptor = descriptor
	return prev, nil
}

// FDLocator formats fd as an fd:// locator.
func FDLocator(fd int) string {
	return FDScheme + strconv.Itoa(fd)
}

// ParseFDLocator extracts the descriptor number from an fd:// locator.
func ParseFDLocator(locator string) (int, error) {
	rest, ok := strings.CutPrefix(locator, FDScheme)
	if !ok {
		return -1, fmt.Errorf("%w: %q is not an %s locator", ErrInvalidArgument, locator, FDScheme)
	}
	fd, err := strconv.Atoi(rest)
	if err != nil || fd < 0 {
		return -1, fmt.Errorf("%w: bad descriptor in %q", ErrInvalidArgument, locator)
	}
	return fd, nil
}

// Fder is anything exposing a descriptor number, such as *os.File or
// *FileDescriptor.
type Fder interface {
	Fd() uintptr
}

// RegisterDescriptor registers handle under name as "fd://<handle>". An
// empty name or negative handle is rejected without touching the registry.
func (b *Bridge) RegisterDescriptor(name string, handle int) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	if handle < 0 {
		b.logger.Info().Int("fd", handle).Msg("invalid file descriptor")
		return fmt.Errorf("%w: file descriptor is invalid (%d)", ErrInvalidArgument, handle)
	}
	b.registry.Register(name, FDLocator(handle))
	return nil
}

// RegisterFile registers the descriptor carried by f under name.
func (b *Bridge) RegisterFile(name string, f Fder) error {
	if f == nil {
		return fmt.Errorf("%w: file descriptor must not be nil", ErrInvalidArgument)
	}
	if fd, ok := f.(*FileDescriptor); ok && fd == nil {
		return fmt.Errorf("%w: file descriptor must not be nil", ErrInvalidArgument)
	}
	return b.RegisterDescriptor(name, int(f.Fd()))
}

// RegisterLocator registers locator under name verbatim.
func (b *Bridge) RegisterLocator(name, locator string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	if locator == "" {
		return fmt.Errorf("%w: descriptor locator must not be empty", ErrInvalidArgument)
	}
	b.registry.Register(name, locator)
	return nil
}

// DescriptorMap returns a copy of every registered name and locator.
func (b *Bridge) DescriptorMap() map[string]string {
	return b.registry.Snapshot()
}
