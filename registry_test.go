package fdbridge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterThenSnapshot(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Snapshot())

	reg.Register("input", "test://input")
	snap := reg.Snapshot()
	assert.Equal(t, "test://input", snap["input"])
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryZeroValue(t *testing.T) {
	var reg Registry
	assert.Empty(t, reg.Snapshot())
	_, ok := reg.Lookup("input")
	assert.False(t, ok)

	reg.Register("input", "fd://3")
	locator, ok := reg.Lookup("input")
	assert.True(t, ok)
	assert.Equal(t, "fd://3", locator)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryOverwriteKeepsSingleEntry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("output", "test://output")
	reg.Register("other", "fd://9")
	before := reg.Len()

	reg.Register("output", "fd://4")

	assert.Equal(t, before, reg.Len())
	locator, ok := reg.Lookup("output")
	require.True(t, ok)
	assert.Equal(t, "fd://4", locator)
}

func TestRegistrySnapshotIsIndependent(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", "fd://1")

	first := reg.Snapshot()
	first["a"] = "mutated"
	first["b"] = "injected"
	reg.Register("c", "fd://3")

	second := reg.Snapshot()
	assert.Equal(t, map[string]string{"a": "fd://1", "c": "fd://3"}, second)
	assert.Len(t, first, 2)
}

func TestRegistryConcurrentRegistration(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				reg.Register(fmt.Sprintf("w%d-%d", worker, i), FDLocator(i))
				if i%100 == 0 {
					_ = reg.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	snap := reg.Snapshot()
	require.Len(t, snap, 2000)
	assert.Equal(t, "fd://999", snap["w1-999"])
	assert.Equal(t, "fd://0", snap["w0-0"])
}
