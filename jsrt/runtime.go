package jsrt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
)

// Exit codes returned by Main, matching the ones Node uses.
const (
	ExitOK              = 0
	ExitUncaught        = 1
	ExitInvalidArgument = 9
)

// Version is reported as process.version.
const Version = "v0.1.0-jsrt"

// ModuleInit fills in the exports of a native module the first time it is
// requested.
type ModuleInit func(rt *Runtime, exports *goja.Object) error

// Runtime is a small Node-flavoured JavaScript runtime on top of goja and
// the goja_nodejs event loop. Main is its blocking entry point. A Runtime
// runs one program and is then spent.
type Runtime struct {
	vm     *goja.Runtime
	loop   *eventloop.EventLoop
	stdout io.Writer
	stderr io.Writer
	logger zerolog.Logger

	extensions map[string]ModuleInit

	// Loop-goroutine state.
	timers     map[int64]*timer
	nextTimer  int64
	holds      map[*eventloop.Timer]struct{}
	stopped    bool
	failure    error
	rejections map[*goja.Promise]goja.Value
	exit       *exitRequest
	process    *goja.Object
}

type exitRequest struct {
	code int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithExtension links a native module reachable as
// process._linkedBinding(name) and require(name).
func WithExtension(name string, init ModuleInit) Option {
	return func(rt *Runtime) {
		rt.extensions[name] = init
	}
}

// WithStdout replaces the console.log destination. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(rt *Runtime) {
		rt.stdout = w
	}
}

// WithStderr replaces the console.error destination. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(rt *Runtime) {
		rt.stderr = w
	}
}

// WithLogger sets the logger for runtime diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// New creates a runtime. Writers default to os.Stdout and os.Stderr at the
// time of the call; once the host redirects descriptors 1 and 2 the output
// follows them.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     zerolog.Nop(),
		extensions: make(map[string]ModuleInit),
		timers:     make(map[int64]*timer),
		holds:      make(map[*eventloop.Timer]struct{}),
		rejections: make(map[*goja.Promise]goja.Value),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// VM returns the underlying goja runtime. It is nil until Main starts the
// loop, and must only be touched from the loop goroutine.
func (rt *Runtime) VM() *goja.Runtime {
	return rt.vm
}

// Async runs work on its own goroutine and returns a promise settled on the
// loop goroutine with work's result. An error, or a panic inside work,
// rejects the promise with its text. Call it from the loop goroutine.
func (rt *Runtime) Async(work func() (any, error)) *goja.Promise {
	promise, resolve, reject := rt.vm.NewPromise()
	if rt.stopped {
		return promise
	}
	hold := rt.hold()
	go func() {
		value, err := runWork(work)
		rt.loop.RunOnLoop(func(vm *goja.Runtime) {
			if !rt.release(hold) {
				return
			}
			if err != nil {
				reject(vm.ToValue(err.Error()))
				return
			}
			resolve(vm.ToValue(value))
		})
	}()
	return promise
}

func runWork(work func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async operation panicked: %v", r)
		}
	}()
	return work()
}

// Main is the runtime's entry point: argv[0] is the program name, then
// runtime options, then a script path and its arguments. "-e <source>"
// evaluates source instead of a script.
func (rt *Runtime) Main(argc int32, argv []string) int {
	if int(argc) >= 0 && int(argc) < len(argv) {
		argv = argv[:argc]
	}

	launch, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintf(rt.stderr, "%s: %v\n", programName(argv), err)
		return ExitInvalidArgument
	}

	src, name, err := launch.source()
	if err != nil {
		fmt.Fprintf(rt.stderr, "Error: Cannot find module '%s'\n", launch.script)
		rt.logger.Debug().Err(err).Str("script", launch.script).Msg("script load failed")
		return ExitUncaught
	}

	var setupErr error
	rt.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(rt.registry()),
		eventloop.EnableConsole(true),
	)
	rt.loop.Run(func(vm *goja.Runtime) {
		rt.vm = vm
		vm.SetPromiseRejectionTracker(rt.trackRejection)
		if setupErr = rt.setupGlobals(launch); setupErr != nil {
			return
		}
		rt.logger.Debug().Str("script", name).Int("args", len(launch.args)).Msg("running script")
		if err := rt.runModule(name, src); err != nil {
			rt.fail(err)
		}
	})
	if setupErr != nil {
		rt.logger.Error().Err(setupErr).Msg("runtime setup failed")
		return ExitUncaught
	}
	return rt.exitCode()
}

// registry links console, the fs builtin and every extension as native
// modules. console writes through the runtime's own writers.
func (rt *Runtime) registry() *require.Registry {
	reg := require.NewRegistry()
	reg.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{out: rt.stdout, err: rt.stderr}))
	reg.RegisterNativeModule("fs", rt.native("fs", initFS))
	reg.RegisterNativeModule("node:fs", rt.native("fs", initFS))
	for name, init := range rt.extensions {
		reg.RegisterNativeModule(name, rt.native(name, init))
	}
	return reg
}

func (rt *Runtime) native(name string, init ModuleInit) require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").ToObject(vm)
		if err := init(rt, exports); err != nil {
			panic(vm.NewGoError(fmt.Errorf("init module %s: %w", name, err)))
		}
	}
}

func (rt *Runtime) runModule(name, src string) error {
	src = stripShebang(src)
	wrapped := "(function (exports, require, module, __filename, __dirname) {" + src + "\n})"
	prog, err := goja.Compile(name, wrapped, false)
	if err != nil {
		return err
	}
	fnVal, err := rt.vm.RunProgram(prog)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return errors.New("module wrapper is not callable")
	}

	module := rt.vm.NewObject()
	exports := rt.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	dir := "."
	if name != evalName {
		dir = filepath.Dir(name)
	}
	_, err = fn(goja.Undefined(), exports, rt.vm.Get("require"), module, rt.vm.ToValue(name), rt.vm.ToValue(dir))
	return err
}

// fail records the first uncaught error and winds the loop down. The
// interrupt raised by process.exit is not a failure.
func (rt *Runtime) fail(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if req, ok := interrupted.Value().(*exitRequest); ok {
			if rt.exit == nil {
				rt.exit = req
			}
			rt.shutdown()
			return
		}
	}
	if rt.failure == nil {
		rt.failure = err
	}
	rt.shutdown()
}

// shutdown cancels every timer and pending Async hold so the loop drains.
func (rt *Runtime) shutdown() {
	rt.stopped = true
	for id, tm := range rt.timers {
		delete(rt.timers, id)
		rt.cancel(tm)
	}
	for t := range rt.holds {
		delete(rt.holds, t)
		rt.loop.ClearTimeout(t)
	}
}

func (rt *Runtime) exitCode() int {
	if rt.exit != nil {
		return rt.exit.code
	}
	if rt.failure != nil {
		fmt.Fprintf(rt.stderr, "Uncaught %s\n", ExceptionFrom(rt.failure).ToString())
		return ExitUncaught
	}
	if len(rt.rejections) > 0 {
		for _, reason := range rt.rejections {
			fmt.Fprintf(rt.stderr, "Uncaught (in promise) %s\n", exceptionFromValue(reason, 0).ToString())
		}
		return ExitUncaught
	}
	if code := rt.process.Get("exitCode"); !isNullish(code) {
		return int(code.ToInteger())
	}
	return ExitOK
}

func (rt *Runtime) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		rt.rejections[p] = p.Result()
	case goja.PromiseRejectionHandle:
		delete(rt.rejections, p)
	}
}

// setupGlobals installs process and replaces the loop's timer globals with
// ones that report uncaught exceptions.
func (rt *Runtime) setupGlobals(launch *launchArgs) error {
	vm := rt.vm

	process := vm.NewObject()
	env := vm.NewObject()
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env.Set(k, v)
		}
	}
	props := map[string]any{
		"argv":           rt.stringArray(launch.processArgv()),
		"execArgv":       rt.stringArray(launch.execArgv),
		"argv0":          launch.argv0,
		"env":            env,
		"pid":            os.Getpid(),
		"platform":       runtime.GOOS,
		"version":        Version,
		"exit":           rt.processExit,
		"_linkedBinding": rt.linkedBinding,
	}
	for k, v := range props {
		if err := process.Set(k, v); err != nil {
			return err
		}
	}
	rt.process = process

	globals := map[string]any{
		"process":       process,
		"setTimeout":    func(call goja.FunctionCall) goja.Value { return rt.setTimer(call, false) },
		"setInterval":   func(call goja.FunctionCall) goja.Value { return rt.setTimer(call, true) },
		"clearTimeout":  rt.clearTimer,
		"clearInterval": rt.clearTimer,
	}
	for k, v := range globals {
		if err := vm.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) processExit(call goja.FunctionCall) goja.Value {
	code := ExitOK
	if arg := call.Argument(0); !isNullish(arg) {
		code = int(arg.ToInteger())
	} else if c := rt.process.Get("exitCode"); !isNullish(c) {
		code = int(c.ToInteger())
	}
	rt.exit = &exitRequest{code: code}
	rt.shutdown()
	rt.vm.Interrupt(rt.exit)
	return goja.Undefined()
}

// linkedBinding resolves through the require registry so a binding and
// require(name) share one exports object.
func (rt *Runtime) linkedBinding(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if _, ok := rt.extensions[name]; !ok {
		panic(rt.newError("No such binding: " + name))
	}
	return require.Require(rt.vm, name)
}

// newError builds a plain JavaScript Error for throwing from native code.
func (rt *Runtime) newError(msg string) *goja.Object {
	obj, err := rt.vm.New(rt.vm.Get("Error"), rt.vm.ToValue(msg))
	if err != nil {
		return rt.vm.NewGoError(errors.New(msg))
	}
	return obj
}

func (rt *Runtime) stringArray(items []string) *goja.Object {
	values := make([]any, len(items))
	for i, s := range items {
		values[i] = s
	}
	return rt.vm.NewArray(values...)
}

func stripShebang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	if i := strings.IndexByte(src, '\n'); i >= 0 {
		// keep the newline so line numbers stay right
		return src[i:]
	}
	return ""
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
