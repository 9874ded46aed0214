package fdbridge

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidArgument is returned when a boundary call receives a missing
	// name, locator or carrier, or a negative descriptor.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyStarted is returned by Start on every call after the first.
	ErrAlreadyStarted = errors.New("embedded runtime already started")

	// ErrNoEntryPoint is returned by Start when the bridge has no entry point.
	ErrNoEntryPoint = errors.New("no embedded runtime entry point configured")

	// ErrTooManyArguments is returned when the argument count does not fit the
	// entry point's int32 argc.
	ErrTooManyArguments = errors.New("too many runtime arguments")
)

// EntryPoint is the blocking start routine of an embedded runtime. argv[0] is
// always ProgramName and argc equals len(argv). The strings in argv share one
// backing store and must not be retained after the call returns.
type EntryPoint func(argc int32, argv []string) int

// StreamCapture installs standard stream redirection. *Redirector is the
// production implementation.
type StreamCapture interface {
	Run() error
}

// PipeFunc creates an OS pipe and returns its read and write descriptors.
type PipeFunc func() (r, w int, err error)

// Bridge is the process-scoped context shared by the launcher, the
// descriptor registry and the runtime-side binding. Hosts normally create one
// per process; tests create as many isolated bridges as they need.
//
// Create bridges with New. The zero value has no registry and is not usable.
type Bridge struct {
	started atomic.Bool
	running atomic.Bool

	registry *Registry
	entry    EntryPoint
	capture  StreamCapture
	pipe     PipeFunc
	logger   zerolog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithEntryPoint sets the runtime start routine invoked by Start.
func WithEntryPoint(entry EntryPoint) Option {
	return func(b *Bridge) {
		b.entry = entry
	}
}

// WithRegistry shares an existing registry instead of creating a new one.
func WithRegistry(reg *Registry) Option {
	return func(b *Bridge) {
		if reg != nil {
			b.registry = reg
		}
	}
}

// WithStreamCapture installs a capture that Start runs before the runtime.
func WithStreamCapture(capture StreamCapture) Option {
	return func(b *Bridge) {
		b.capture = capture
	}
}

// WithPipeFunc replaces the pipe allocator used by the createPipe binding.
func WithPipeFunc(pipe PipeFunc) Option {
	return func(b *Bridge) {
		if pipe != nil {
			b.pipe = pipe
		}
	}
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge. Without options it has an empty registry, no stream
// capture, no entry point and a discarding logger.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		registry: NewRegistry(),
		pipe:     NewPipe,
		logger:   zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", LogTag).Logger()
	return b
}

// Registry returns the bridge's descriptor registry.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Logger returns the bridge's logger.
func (b *Bridge) Logger() zerolog.Logger {
	return b.logger
}
