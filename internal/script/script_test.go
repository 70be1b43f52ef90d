package script

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/sloth/internal/heap"
)

const capacityThree = `
capacity: 3
steps:
  - {op: alloc, size: 4, expect: 0}
  - {op: alloc, size: 4, expect: 1}
  - {op: alloc, size: 4, expect: 2}
  - {op: alloc, size: 4, error: HeapExhausted}
  - {op: write, handle: 1, value: 7}
  - {op: read, handle: 1, expect: 7}
  - {op: read, handle: 3, error: InvalidHandle}
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(capacityThree))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Capacity)
	require.Len(t, s.Steps, 7)
	assert.Equal(t, OpAlloc, s.Steps[0].Op)
	require.NotNil(t, s.Steps[0].Expect)
	assert.EqualValues(t, 0, *s.Steps[0].Expect)
	assert.Equal(t, "HeapExhausted", s.Steps[3].Error)
	assert.Equal(t, "write(1, 7)", s.Steps[4].String())
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"empty":        ``,
		"no steps":     "capacity: 2\n",
		"unknown op":   "steps:\n  - {op: free, handle: 0}\n",
		"unknown kind": "steps:\n  - {op: alloc, size: 0, error: OutOfMemory}\n",
		"unknown key":  "steps:\n  - {op: alloc, bytes: 4}\n",
		"negative cap": "capacity: -1\nsteps:\n  - {op: alloc, size: 1}\n",
		"huge cap":     "capacity: 1099511627776\nsteps:\n  - {op: alloc, size: 1}\n",
		"both":         "steps:\n  - {op: alloc, size: 1, expect: 0, error: InvalidSize}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(capacityThree), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Steps, 7)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunCapacityThree(t *testing.T) {
	s, err := Parse([]byte(capacityThree))
	require.NoError(t, err)

	var out bytes.Buffer
	h := heap.New(s.HeapCapacity(100), heap.WithOutput(&out))
	rep, err := Run(h, s)
	require.NoError(t, err)

	assert.True(t, rep.OK(), "failures: %v", rep.Failures)
	require.Len(t, rep.Results, 7)
	assert.EqualValues(t, 2, rep.Results[2].Handle)
	assert.ErrorIs(t, rep.Results[3].Err, heap.ErrHeapExhausted)
	assert.ErrorIs(t, rep.Results[6].Err, heap.ErrInvalidHandle)
	assert.Equal(t, 3, h.Len())

	want := "MEMALLOC: heap[0] = 4\n" +
		"MEMALLOC: heap[1] = 4\n" +
		"MEMALLOC: heap[2] = 4\n" +
		"ASSREF: heap[1] = 7\n" +
		"DREF: heap[1] = 7\n"
	assert.Equal(t, want, out.String())
}

func TestRunCollectsFailures(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - {op: alloc, size: 4, expect: 1}
  - {op: read, handle: 0, expect: 5}
  - {op: alloc, size: 0}
  - {op: read, handle: 0, error: InvalidHandle}
`))
	require.NoError(t, err)

	h := heap.New(s.HeapCapacity(4), heap.WithOutput(&bytes.Buffer{}))
	rep, err := Run(h, s)
	require.NoError(t, err)

	assert.False(t, rep.OK())
	require.Len(t, rep.Failures, 4)
	assert.Equal(t, "want 1, got 0", rep.Failures[0].Message)
	assert.Equal(t, "want 5, got 0", rep.Failures[1].Message)
	assert.Contains(t, rep.Failures[2].Message, "invalid size")
	assert.Equal(t, "want error InvalidHandle, got ok", rep.Failures[3].Message)
	assert.Equal(t, "step 0 alloc(4): want 1, got 0", rep.Failures[0].String())
}

func TestParseCapacityBound(t *testing.T) {
	src := fmt.Sprintf("capacity: %d\nsteps:\n  - {op: alloc, size: 1, expect: 0}\n", heap.MaxCapacity)
	s, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, heap.MaxCapacity, s.Capacity)

	_, err = Parse([]byte("capacity: 1099511627776\nsteps:\n  - {op: alloc, size: 1}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1099511627776")
}

func TestHeapCapacity(t *testing.T) {
	assert.Equal(t, 10, (&Script{}).HeapCapacity(10))
	assert.Equal(t, 3, (&Script{Capacity: 3}).HeapCapacity(10))
}

func TestRunNilHeap(t *testing.T) {
	_, err := Run(nil, &Script{Steps: []Step{{Op: OpAlloc, Size: 1}}})
	assert.Error(t, err)
}
