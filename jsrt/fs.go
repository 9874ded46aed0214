package jsrt

import (
	"github.com/dop251/goja"
)

const (
	defaultReadSize = 64 * 1024
	maxReadSize     = 1 << 20
)

// initFS builds the "fs" builtin. It works on raw descriptor numbers, which
// is what fd:// locators from the host carry.
func initFS(rt *Runtime, exports *goja.Object) error {
	vm := rt.vm

	if err := exports.Set("writeSync", func(call goja.FunctionCall) goja.Value {
		fd := rt.fdArg(call.Argument(0))
		n, err := FD(fd).Write([]byte(call.Argument(1).String()))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(n)
	}); err != nil {
		return err
	}

	if err := exports.Set("closeSync", func(call goja.FunctionCall) goja.Value {
		if err := FD(rt.fdArg(call.Argument(0))).Close(); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	// read(fd[, size]) resolves with the next chunk as a string, or null at
	// EOF. size is capped at maxReadSize.
	return exports.Set("read", func(call goja.FunctionCall) goja.Value {
		fd := FD(rt.fdArg(call.Argument(0)))
		size := defaultReadSize
		if arg := call.Argument(1); !isNullish(arg) {
			if n := arg.ToInteger(); n > 0 {
				size = int(min(n, maxReadSize))
			}
		}
		return vm.ToValue(rt.Async(func() (any, error) {
			buf := make([]byte, size)
			n, err := fd.Read(buf)
			if n == 0 && err != nil {
				if isEOF(err) {
					return nil, nil
				}
				return nil, err
			}
			return string(buf[:n]), nil
		}))
	})
}

func (rt *Runtime) fdArg(v goja.Value) int {
	if isNullish(v) {
		panic(rt.vm.NewTypeError("fd must be a number"))
	}
	fd := v.ToInteger()
	if fd < 0 {
		panic(rt.vm.NewTypeError("fd must be a non-negative number"))
	}
	return int(fd)
}
