package jsrt

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

// keepAlive is the delay of the idle timer that holds the loop open while
// an Async operation is in flight. It never fires in practice.
const keepAlive = time.Duration(math.MaxInt64)

type timer struct {
	timeout  *eventloop.Timer
	interval *eventloop.Interval
}

func (rt *Runtime) setTimer(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(rt.vm.NewTypeError("callback must be a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	rt.nextTimer++
	id := rt.nextTimer
	if rt.stopped {
		return rt.vm.ToValue(id)
	}

	fire := func(*goja.Runtime) {
		if _, live := rt.timers[id]; !live {
			return
		}
		if !repeat {
			delete(rt.timers, id)
		}
		if _, err := fn(goja.Undefined(), args...); err != nil {
			rt.fail(err)
		}
	}
	tm := &timer{}
	rt.timers[id] = tm
	if repeat {
		tm.interval = rt.loop.SetInterval(fire, delay)
	} else {
		tm.timeout = rt.loop.SetTimeout(fire, delay)
	}
	return rt.vm.ToValue(id)
}

func (rt *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if tm, ok := rt.timers[id]; ok {
		delete(rt.timers, id)
		rt.cancel(tm)
	}
	return goja.Undefined()
}

func (rt *Runtime) cancel(tm *timer) {
	switch {
	case tm.interval != nil:
		rt.loop.ClearInterval(tm.interval)
	case tm.timeout != nil:
		rt.loop.ClearTimeout(tm.timeout)
	}
}

// hold keeps the loop running until release.
func (rt *Runtime) hold() *eventloop.Timer {
	t := rt.loop.SetTimeout(func(*goja.Runtime) {}, keepAlive)
	rt.holds[t] = struct{}{}
	return t
}

// release drops a hold. It reports false if shutdown already dropped it.
func (rt *Runtime) release(t *eventloop.Timer) bool {
	if _, ok := rt.holds[t]; !ok {
		return false
	}
	delete(rt.holds, t)
	rt.loop.ClearTimeout(t)
	return true
}
