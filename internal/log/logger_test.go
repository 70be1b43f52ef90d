package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0", Hex(0))
	assert.Equal(t, "0xdeadbeef", Hex(0xDEADBEEF))
}

func TestTraceCallback(t *testing.T) {
	l := NewNop()

	var got []string
	l.SetOnTrace(func(pc uint64, category, name, detail string) {
		got = append(got, category, name, detail)
	})
	l.Trace(0x1000, "stdmem", "memalloc", "size=4")

	require.Len(t, got, 3)
	assert.Equal(t, []string{"stdmem", "memalloc", "size=4"}, got)
}

func TestWithCategoryKeepsCallback(t *testing.T) {
	l := NewNop()
	called := false
	l.SetOnTrace(func(uint64, string, string, string) { called = true })

	l.WithCategory("heap").Trace(0, "heap", "read", "")
	assert.True(t, called)
}

func TestGetWithoutInit(t *testing.T) {
	assert.NotNil(t, Get())
}
