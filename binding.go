package fdbridge

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dop251/goja"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/richinsley/fdbridge/jsrt"
)

// Runtime module names.
const (
	// BindingName is the linked binding scripts reach with
	// process._linkedBinding("node_fd_pass").
	BindingName = "node_fd_pass"

	// FramesModuleName is the module exchanging length-prefixed MessagePack
	// frames with a host Channel.
	FramesModuleName = "fdbridge_frames"
)

// WithEmbeddedRuntime makes Start run a fresh jsrt runtime with the bridge's
// modules linked in. opts are applied after the defaults.
func WithEmbeddedRuntime(opts ...jsrt.Option) Option {
	return func(b *Bridge) {
		b.entry = func(argc int32, argv []string) int {
			all := append([]jsrt.Option{jsrt.WithLogger(b.logger)}, b.RuntimeOptions()...)
			return jsrt.New(append(all, opts...)...).Main(argc, argv)
		}
	}
}

// RuntimeOptions links the node_fd_pass binding and the frames module into a
// jsrt runtime.
func (b *Bridge) RuntimeOptions() []jsrt.Option {
	return []jsrt.Option{
		jsrt.WithExtension(BindingName, b.Extension()),
		jsrt.WithExtension(FramesModuleName, initFrames),
	}
}

// Extension returns the initialiser of the node_fd_pass binding:
//
//	getIoMap()   plain object mapping every registered name to its locator
//	createPipe() promise of {readable, writable}, or rejection with the OS
//	             error text
func (b *Bridge) Extension() jsrt.ModuleInit {
	return func(rt *jsrt.Runtime, exports *goja.Object) error {
		vm := rt.VM()

		if err := exports.Set("getIoMap", func(goja.FunctionCall) goja.Value {
			ioMap := vm.NewObject()
			for name, locator := range b.registry.Snapshot() {
				if err := ioMap.Set(name, locator); err != nil {
					panic(vm.NewGoError(err))
				}
			}
			return ioMap
		}); err != nil {
			return err
		}

		return exports.Set("createPipe", func(goja.FunctionCall) goja.Value {
			return vm.ToValue(rt.Async(func() (any, error) {
				r, w, err := b.pipe()
				if err != nil {
					b.logger.Warn().Err(err).Msg("createPipe failed")
					return nil, err
				}
				b.logger.Debug().Int("readable", r).Int("writable", w).Msg("pipe created")
				return map[string]any{"readable": r, "writable": w}, nil
			}))
		})
	}
}

type fdLocks struct {
	read  sync.Mutex
	write sync.Mutex
}

// frameIO keeps frames on one descriptor from interleaving when a script
// has several sends or receives in flight.
type frameIO struct {
	mu    sync.Mutex
	locks map[int]*fdLocks
}

func (f *frameIO) lock(fd int) *fdLocks {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[fd]
	if !ok {
		l = &fdLocks{}
		f.locks[fd] = l
	}
	return l
}

// initFrames builds the fdbridge_frames module:
//
//	send(fd, value)  promise settled once the frame is written
//	receive(fd)      promise of the next decoded value, null at end of stream
//
// fd is a descriptor number or an fd:// locator taken from getIoMap.
func initFrames(rt *jsrt.Runtime, exports *goja.Object) error {
	vm := rt.VM()
	fio := &frameIO{locks: make(map[int]*fdLocks)}

	if err := exports.Set("send", func(call goja.FunctionCall) goja.Value {
		fd := descriptorArg(vm, call.Argument(0))
		data, err := msgpack.Marshal(call.Argument(1).Export())
		if err != nil {
			panic(vm.NewTypeError(fmt.Sprintf("cannot encode frame: %v", err)))
		}
		locks := fio.lock(fd)
		return vm.ToValue(rt.Async(func() (any, error) {
			locks.write.Lock()
			defer locks.write.Unlock()
			return nil, NewMsgpackTransport(nil, jsrt.FD(fd)).Send(data)
		}))
	}); err != nil {
		return err
	}

	return exports.Set("receive", func(call goja.FunctionCall) goja.Value {
		fd := descriptorArg(vm, call.Argument(0))
		locks := fio.lock(fd)
		return vm.ToValue(rt.Async(func() (any, error) {
			locks.read.Lock()
			defer locks.read.Unlock()
			data, err := NewMsgpackTransport(jsrt.FD(fd), nil).Receive()
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			var v any
			if err := msgpack.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		}))
	})
}

func descriptorArg(vm *goja.Runtime, v goja.Value) int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		panic(vm.NewTypeError("descriptor must be a number or an fd:// locator"))
	}
	if s, ok := v.Export().(string); ok {
		fd, err := ParseFDLocator(s)
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return fd
	}
	fd := v.ToInteger()
	if fd < 0 {
		panic(vm.NewTypeError("descriptor must be non-negative"))
	}
	return int(fd)
}
