package fdbridge

import (
	"fmt"
	"math"
	"unsafe"
)

// ProgramName is always argv[0] of the embedded runtime.
const ProgramName = "node"

// ArgumentBuffer packs runtime arguments into one contiguous store of
// NUL-terminated strings, the layout a C-style main(argc, argv) expects.
//
// The store is filled completely before any view into it is taken, and it is
// never written again afterwards, so views stay valid for the buffer's life.
type ArgumentBuffer struct {
	store   []byte
	offsets []int
	views   []string
}

// MarshalArguments builds the buffer for program followed by args, in order.
func MarshalArguments(program string, args []string) (*ArgumentBuffer, error) {
	if err := checkArgCount(len(args)); err != nil {
		return nil, err
	}

	size := len(program) + 1
	for _, arg := range args {
		size += len(arg) + 1
	}

	ab := &ArgumentBuffer{
		store:   make([]byte, 0, size),
		offsets: make([]int, 0, len(args)+1),
	}
	ab.appendArg(program)
	for _, arg := range args {
		ab.appendArg(arg)
	}

	// offsets become views only now that the store is final
	ab.views = make([]string, len(ab.offsets))
	for i := range ab.offsets {
		ab.views[i] = unsafe.String(unsafe.SliceData(ab.store[ab.offsets[i]:]), ab.argLen(i))
	}
	return ab, nil
}

func checkArgCount(n int) error {
	if n < 0 || n >= math.MaxInt32 {
		return fmt.Errorf("%w: %d arguments do not fit argc", ErrTooManyArguments, n)
	}
	return nil
}

func (ab *ArgumentBuffer) appendArg(arg string) {
	ab.offsets = append(ab.offsets, len(ab.store))
	ab.store = append(ab.store, arg...)
	ab.store = append(ab.store, 0)
}

func (ab *ArgumentBuffer) argLen(i int) int {
	end := len(ab.store)
	if i+1 < len(ab.offsets) {
		end = ab.offsets[i+1]
	}
	// minus the NUL terminator
	return end - ab.offsets[i] - 1
}

// Argc returns the argument count including argv[0].
func (ab *ArgumentBuffer) Argc() int32 {
	return int32(len(ab.offsets))
}

// Argv returns the arguments as strings backed by the buffer's store.
func (ab *ArgumentBuffer) Argv() []string {
	out := make([]string, len(ab.views))
	copy(out, ab.views)
	return out
}

// CString returns argument i including its NUL terminator. The slice aliases
// the store and must not be modified.
func (ab *ArgumentBuffer) CString(i int) []byte {
	start := ab.offsets[i]
	end := start + ab.argLen(i) + 1
	return ab.store[start:end:end]
}

// Bytes returns the whole backing store.
func (ab *ArgumentBuffer) Bytes() []byte {
	return ab.store[:len(ab.store):len(ab.store)]
}
