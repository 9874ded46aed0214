package jsrt

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
)

// maxCauseDepth bounds how far Error.cause chains are followed.
const maxCauseDepth = 8

// Exception is a JavaScript error value copied out of the VM, so it can be
// logged or returned after the VM is gone.
type Exception struct {
	// Name is the error constructor name, such as "TypeError".
	Name string `json:"name"`

	// Message is the error message.
	Message string `json:"message"`

	// Stack is the VM stack trace, including the name and message line.
	Stack string `json:"stack,omitempty"`

	// Cause is the error's cause property, when it is an error too.
	Cause *Exception `json:"cause,omitempty"`
}

// ToString formats the exception with its stack and every cause.
func (e *Exception) ToString() string {
	var sb strings.Builder
	for ex, depth := e, 0; ex != nil; ex, depth = ex.Cause, depth+1 {
		if depth > 0 {
			sb.WriteString("\nCaused by: ")
		}
		sb.WriteString(ex.headline())
		if stack := ex.trace(); stack != "" {
			sb.WriteString("\n")
			sb.WriteString(stack)
		}
	}
	return sb.String()
}

func (e *Exception) Error() string {
	return e.headline()
}

func (e *Exception) headline() string {
	switch {
	case e.Name == "":
		return e.Message
	case e.Message == "":
		return e.Name
	default:
		return e.Name + ": " + e.Message
	}
}

// trace returns the stack without its leading headline, which goja repeats.
func (e *Exception) trace() string {
	stack := strings.TrimRight(e.Stack, "\n")
	if rest, ok := strings.CutPrefix(stack, e.headline()); ok {
		stack = strings.TrimLeft(rest, "\n")
	}
	return stack
}

// ExceptionFrom converts an error returned by the VM. Non-JavaScript errors
// become a plain "Error".
func ExceptionFrom(err error) *Exception {
	if err == nil {
		return nil
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		ex := exceptionFromValue(jsErr.Value(), 0)
		if ex.Stack == "" {
			ex.Stack = jsErr.String()
		}
		return ex
	}
	return &Exception{Name: "Error", Message: err.Error()}
}

func exceptionFromValue(v goja.Value, depth int) *Exception {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return &Exception{Message: valueString(v)}
	}
	ex := &Exception{
		Name:    valueString(obj.Get("name")),
		Message: valueString(obj.Get("message")),
		Stack:   valueString(obj.Get("stack")),
	}
	if ex.Name == "" && ex.Message == "" {
		ex.Message = obj.String()
	}
	if cause := obj.Get("cause"); depth < maxCauseDepth && !isNullish(cause) {
		ex.Cause = exceptionFromValue(cause, depth+1)
	}
	return ex
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func valueString(v goja.Value) string {
	if isNullish(v) {
		return ""
	}
	return v.String()
}
