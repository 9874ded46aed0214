package fdbridge

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// IOMapEnv carries the child's descriptor map as a JSON object.
const IOMapEnv = "FDBRIDGE_IO_MAP"

// DefaultGracePeriod is how long Terminate waits after SIGTERM before
// killing the child.
const DefaultGracePeriod = 5 * time.Second

// ExitStartFailed is returned by ExecRuntime.Main when the child cannot be
// started.
const ExitStartFailed = 1

// ExecRuntime is an EntryPoint backed by an external runtime binary. Every
// fd:// entry of the registry is duplicated into the child, where it appears
// from descriptor 3 upwards; the rewritten map reaches the child in IOMapEnv.
type ExecRuntime struct {
	path     string
	registry *Registry
	env      map[string]string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	grace    time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// ExecOption configures an ExecRuntime.
type ExecOption func(*ExecRuntime)

// WithExecEnv adds environment variables on top of the host environment.
func WithExecEnv(env map[string]string) ExecOption {
	return func(er *ExecRuntime) {
		for k, v := range env {
			er.env[k] = v
		}
	}
}

// WithExecStdio replaces the child's standard streams. A nil writer keeps
// the process's own descriptor, which is what stream redirection captures.
func WithExecStdio(stdin io.Reader, stdout, stderr io.Writer) ExecOption {
	return func(er *ExecRuntime) {
		er.stdin, er.stdout, er.stderr = stdin, stdout, stderr
	}
}

// WithGracePeriod sets the SIGTERM to SIGKILL delay used by Terminate.
func WithGracePeriod(d time.Duration) ExecOption {
	return func(er *ExecRuntime) {
		if d > 0 {
			er.grace = d
		}
	}
}

// WithExecLogger sets the logger for child lifecycle events.
func WithExecLogger(logger zerolog.Logger) ExecOption {
	return func(er *ExecRuntime) {
		er.logger = logger
	}
}

// NewExecRuntime creates an entry point running the binary at path. The
// descriptor map is read from registry when Main is called.
func NewExecRuntime(path string, registry *Registry, opts ...ExecOption) *ExecRuntime {
	if registry == nil {
		registry = NewRegistry()
	}
	er := &ExecRuntime{
		path:     path,
		registry: registry,
		env:      make(map[string]string),
		grace:    DefaultGracePeriod,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(er)
	}
	return er
}

// Main runs the child with argv[1:argc] and returns its exit code. A child
// killed by a signal reports 128 plus the signal number.
func (er *ExecRuntime) Main(argc int32, argv []string) int {
	if int(argc) >= 0 && int(argc) < len(argv) {
		argv = argv[:argc]
	}
	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}

	cmd := exec.Command(er.path, args...)
	files, ioMap := er.childFiles()
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	setExtraFiles(cmd, files)

	encoded, err := json.Marshal(ioMap)
	if err != nil {
		er.logger.Error().Err(err).Msg("cannot encode io map")
		return ExitStartFailed
	}
	cmd.Env = os.Environ()
	for key, value := range er.env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	cmd.Env = append(cmd.Env, IOMapEnv+"="+string(encoded))

	cmd.Stdin = er.stdin
	cmd.Stdout = orFile(er.stdout, os.Stdout)
	cmd.Stderr = orFile(er.stderr, os.Stderr)
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		er.logger.Error().Err(err).Str("path", er.path).Msg("cannot start runtime")
		return ExitStartFailed
	}
	er.logger.Info().Int("pid", cmd.Process.Pid).Str("path", er.path).Int("descriptors", len(files)).Msg("runtime started")

	done := make(chan struct{})
	er.mu.Lock()
	er.cmd, er.done = cmd, done
	er.mu.Unlock()

	// The child holds its own copies now.
	for _, f := range files {
		f.Close()
	}
	files = nil

	stop := er.setupSignalHandler(done)
	err = cmd.Wait()
	close(done)
	stop()

	code := exitStatus(cmd.ProcessState)
	if err != nil && !errors.As(err, new(*exec.ExitError)) {
		er.logger.Warn().Err(err).Msg("runtime wait failed")
	}
	er.logger.Info().Int("exit", code).Msg("runtime exited")
	return code
}

// Pid returns the running child's process id, or 0 before it starts.
func (er *ExecRuntime) Pid() int {
	er.mu.Lock()
	defer er.mu.Unlock()
	if er.cmd == nil || er.cmd.Process == nil {
		return 0
	}
	return er.cmd.Process.Pid
}

// Terminate gracefully stops the child by sending SIGTERM.
// If it doesn't exit within the grace period, it is killed with SIGKILL.
// Returns nil if the child isn't running.
func (er *ExecRuntime) Terminate() error {
	er.mu.Lock()
	cmd, done := er.cmd, er.done
	er.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(unix.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	select {
	case <-time.After(er.grace):
		er.logger.Warn().Dur("grace", er.grace).Msg("runtime ignored SIGTERM, killing")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-done
	case <-done:
	}
	return nil
}

// childFiles duplicates every fd:// entry for the child and rewrites the map
// to the descriptor numbers the child will see. Other locators pass through
// unchanged.
func (er *ExecRuntime) childFiles() ([]*os.File, map[string]string) {
	snapshot := er.registry.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	slices.Sort(names)

	var files []*os.File
	ioMap := make(map[string]string, len(snapshot))
	for _, name := range names {
		locator := snapshot[name]
		fd, err := ParseFDLocator(locator)
		if err != nil {
			ioMap[name] = locator
			continue
		}
		dup, err := unix.Dup(fd)
		if err != nil {
			er.logger.Warn().Err(err).Str("name", name).Int("fd", fd).Msg("cannot pass descriptor to runtime")
			continue
		}
		unix.CloseOnExec(dup)
		files = append(files, os.NewFile(uintptr(dup), name))
	}

	childFDs := childDescriptors(len(files))
	for i, f := range files {
		ioMap[f.Name()] = FDScheme + childFDs[i]
	}
	return files, ioMap
}

func (er *ExecRuntime) setupSignalHandler(done <-chan struct{}) (stop func()) {
	signalChan := make(chan os.Signal, 1)
	setSignalsForChannel(signalChan)

	go func() {
		select {
		case sig := <-signalChan:
			er.logger.Info().Str("signal", sig.String()).Msg("terminating runtime")
			er.Terminate()
		case <-done:
		}
	}()
	return func() { stopSignals(signalChan) }
}

func orFile(w io.Writer, fallback *os.File) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
