package fdbridge

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// DefaultChunkSize is the read size of a redirect relay. Each read becomes
// one log record.
const DefaultChunkSize = 2048

// closeDrainTimeout bounds how long Close waits for relays to reach EOF
// before closing their read ends.
const closeDrainTimeout = time.Second

// Stream names a descriptor to capture and the level its records get.
type Stream struct {
	Name  string
	FD    int
	Level zerolog.Level
}

var (
	// Stdout is captured at info level.
	Stdout = Stream{Name: "stdout", FD: unix.Stdout, Level: zerolog.InfoLevel}

	// Stderr is captured at error level.
	Stderr = Stream{Name: "stderr", FD: unix.Stderr, Level: zerolog.ErrorLevel}
)

// DupFunc makes newfd refer to the same open file as oldfd.
type DupFunc func(oldfd, newfd int) error

// Redirector relays standard streams into a Sink. Run installs the pipes and
// starts one relay goroutine per stream; Close puts the original
// destinations back.
type Redirector struct {
	tag     string
	sink    Sink
	streams []Stream
	pool    *BufferPool
	pipe    PipeFunc
	dup     DupFunc

	mu       sync.Mutex
	captures []*capture
	wg       sync.WaitGroup
}

type capture struct {
	stream Stream
	reader *os.File
	saved  int
}

// RedirectOption configures a Redirector.
type RedirectOption func(*Redirector)

// WithStreams replaces the default stdout and stderr pair.
func WithStreams(streams ...Stream) RedirectOption {
	return func(r *Redirector) {
		r.streams = streams
	}
}

// WithTag sets the tag attached to every record.
func WithTag(tag string) RedirectOption {
	return func(r *Redirector) {
		r.tag = tag
	}
}

// WithChunkSize sets the relay read size.
func WithChunkSize(size int) RedirectOption {
	return func(r *Redirector) {
		r.pool = NewBufferPool(size, 4)
	}
}

// WithRedirectPipe replaces the pipe allocator.
func WithRedirectPipe(pipe PipeFunc) RedirectOption {
	return func(r *Redirector) {
		r.pipe = pipe
	}
}

// WithDupFunc replaces the descriptor duplication call.
func WithDupFunc(dup DupFunc) RedirectOption {
	return func(r *Redirector) {
		r.dup = dup
	}
}

// NewRedirector creates a redirector for stdout and stderr writing to sink.
func NewRedirector(sink Sink, opts ...RedirectOption) *Redirector {
	r := &Redirector{
		tag:     LogTag,
		sink:    sink,
		streams: []Stream{Stdout, Stderr},
		pool:    NewBufferPool(DefaultChunkSize, 4),
		pipe:    NewPipe,
		dup:     dupOnto,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run redirects every configured stream. Streams are installed before Run
// returns, so output written afterwards is captured. A stream whose setup
// fails is left untouched and reported in the returned error; the others
// keep running.
func (r *Redirector) Run() error {
	var errs []error
	for _, s := range r.streams {
		c, err := r.install(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("redirect %s: %w", s.Name, err))
			continue
		}
		r.mu.Lock()
		r.captures = append(r.captures, c)
		r.mu.Unlock()

		r.wg.Add(1)
		go r.relay(c)
	}
	return errors.Join(errs...)
}

func (r *Redirector) install(s Stream) (*capture, error) {
	// *os.File writes go straight to the descriptor, so there is no
	// library buffer to switch off before swapping it.
	saved, err := unix.Dup(s.FD)
	if err != nil {
		return nil, fmt.Errorf("save descriptor %d: %w", s.FD, err)
	}
	unix.CloseOnExec(saved)

	rfd, wfd, err := r.pipe()
	if err != nil {
		unix.Close(saved)
		return nil, fmt.Errorf("create pipe: %w", err)
	}

	if err := r.dup(wfd, s.FD); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(saved)
		return nil, fmt.Errorf("dup onto %d: %w", s.FD, err)
	}
	unix.Close(wfd)

	// a non-blocking read end lets Close interrupt a pending read
	if err := unix.SetNonblock(rfd, true); err != nil {
		r.dup(saved, s.FD)
		unix.Close(rfd)
		unix.Close(saved)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}

	return &capture{
		stream: s,
		reader: os.NewFile(uintptr(rfd), "redirect-"+s.Name),
		saved:  saved,
	}, nil
}

func (r *Redirector) relay(c *capture) {
	defer r.wg.Done()

	buf := r.pool.Get()
	defer r.pool.Put(buf)

	for {
		n, err := c.reader.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if chunk[n-1] == '\n' {
				chunk = chunk[:n-1]
			}
			r.sink.Log(c.stream.Level, r.tag, string(chunk))
		}
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close restores the original descriptors and waits for the relays to drain.
// Captures are undone newest first, so a stream redirected by several Run
// calls ends up back on the descriptor it had before the first one.
// Relays still blocked after closeDrainTimeout, for example because a child
// process holds a copy of the pipe, are stopped by closing their read ends.
func (r *Redirector) Close() error {
	r.mu.Lock()
	captures := r.captures
	r.captures = nil
	r.mu.Unlock()

	var errs []error
	for i := len(captures) - 1; i >= 0; i-- {
		c := captures[i]
		if err := r.dup(c.saved, c.stream.FD); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", c.stream.Name, err))
		}
		unix.Close(c.saved)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeDrainTimeout):
	}

	for _, c := range captures {
		c.reader.Close()
	}
	<-done
	return errors.Join(errs...)
}
