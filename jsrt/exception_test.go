package jsrt

import (
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"
)

func TestExceptionFromThrownError(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`throw new RangeError("out of range")`)
	if err == nil {
		t.Fatal("expected an error from the VM")
	}

	ex := ExceptionFrom(err)
	if ex.Name != "RangeError" {
		t.Errorf("Expected name 'RangeError', got '%s'", ex.Name)
	}
	if ex.Message != "out of range" {
		t.Errorf("Expected message 'out of range', got '%s'", ex.Message)
	}
	if ex.Cause != nil {
		t.Error("Expected Cause to be nil for simple exception")
	}
	if !strings.HasPrefix(ex.ToString(), "RangeError: out of range") {
		t.Errorf("ToString should start with the headline, got %q", ex.ToString())
	}
}

func TestExceptionWithCause(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`
		const inner = new TypeError("bad descriptor");
		const outer = new Error("pipe failed");
		outer.cause = inner;
		throw outer;
	`)
	if err == nil {
		t.Fatal("expected an error from the VM")
	}

	ex := ExceptionFrom(err)
	if ex.Cause == nil {
		t.Fatal("Expected Cause to be non-nil for chained exception")
	}
	if ex.Cause.Name != "TypeError" {
		t.Errorf("Expected cause name 'TypeError', got '%s'", ex.Cause.Name)
	}
	if ex.Cause.Message != "bad descriptor" {
		t.Errorf("Expected cause message 'bad descriptor', got '%s'", ex.Cause.Message)
	}

	str := ex.ToString()
	if !strings.Contains(str, "Caused by: TypeError: bad descriptor") {
		t.Errorf("ToString should include the cause, got %q", str)
	}
}

func TestExceptionThrownPrimitive(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`throw "plain text"`)
	if err == nil {
		t.Fatal("expected an error from the VM")
	}

	ex := ExceptionFrom(err)
	if ex.Name != "" {
		t.Errorf("Expected empty name, got '%s'", ex.Name)
	}
	if ex.Message != "plain text" {
		t.Errorf("Expected message 'plain text', got '%s'", ex.Message)
	}
}

func TestExceptionFromGoError(t *testing.T) {
	ex := ExceptionFrom(errors.New("disk full"))
	if ex.Name != "Error" || ex.Message != "disk full" {
		t.Errorf("Unexpected exception %+v", ex)
	}
	if ExceptionFrom(nil) != nil {
		t.Error("ExceptionFrom(nil) should be nil")
	}
}

func TestExceptionCauseCycle(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`
		const e = new Error("loop");
		e.cause = e;
		throw e;
	`)
	if err == nil {
		t.Fatal("expected an error from the VM")
	}

	depth := 0
	for ex := ExceptionFrom(err); ex != nil; ex = ex.Cause {
		depth++
	}
	if depth != maxCauseDepth+1 {
		t.Errorf("Expected cause chain cut at %d, got %d", maxCauseDepth+1, depth)
	}
}

func TestExceptionError(t *testing.T) {
	ex := &Exception{
		Name:    "SyntaxError",
		Message: "Unexpected token",
		Stack:   "SyntaxError: Unexpected token\n\tat main.js:1:1",
	}

	var err error = ex
	if err.Error() != "SyntaxError: Unexpected token" {
		t.Errorf("Unexpected error string %q", err.Error())
	}
	if got := ex.ToString(); got != "SyntaxError: Unexpected token\n\tat main.js:1:1" {
		t.Errorf("ToString should not repeat the headline, got %q", got)
	}
}
