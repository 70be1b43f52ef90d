package stdmem

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/heap"
	"github.com/zboralski/sloth/internal/stubs"
)

const sentinel = uint64(0xDEADBEEF)

type harness struct {
	emu   *emulator.Emulator
	env   *stubs.Env
	out   *bytes.Buffer
	addrs map[string]uint64
	calls []string
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()

	emu, err := emulator.New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	t.Cleanup(func() { emu.Close() })

	out := &bytes.Buffer{}
	hp := heap.New(capacity, heap.WithOutput(out))
	h := &harness{
		emu:   emu,
		env:   stubs.NewEnv(hp),
		out:   out,
		addrs: make(map[string]uint64),
	}

	for i, name := range Names {
		addr := emulator.StubAddress(i)
		if err := stubs.DefaultRegistry.InstallAt(emu, h.env, name, addr); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
		h.addrs[name] = addr
	}

	stubs.DefaultRegistry.OnCall = func(category, name, detail string) {
		h.calls = append(h.calls, name+" "+detail)
	}
	t.Cleanup(func() { stubs.DefaultRegistry.OnCall = nil })

	return h
}

// call runs the shim at name with the given X registers and returns X0.
func (h *harness) call(name string, args ...uint64) uint64 {
	for i, a := range args {
		h.emu.SetX(i, a)
	}
	h.emu.SetLR(sentinel)
	addr := h.addrs[name]
	_ = h.emu.Run(addr, addr+4)
	return h.emu.X(0)
}

func TestMemallocIssuesHandles(t *testing.T) {
	h := newHarness(t, 8)

	for want := uint64(0); want < 3; want++ {
		if got := h.call("memalloc", 4); got != want {
			t.Errorf("memalloc(4) = %d, want %d", got, want)
		}
	}
	if h.env.Heap.Len() != 3 {
		t.Errorf("heap Len = %d, want 3", h.env.Heap.Len())
	}
	if !strings.HasPrefix(h.out.String(), "MEMALLOC: heap[0] = 4\n") {
		t.Errorf("unexpected diagnostics: %q", h.out.String())
	}
}

func TestAssignThenDeref(t *testing.T) {
	h := newHarness(t, 4)

	loc := h.call("memalloc", 4)
	h.call("assignrefi", loc, 42)
	if got := h.call("drefi", loc); got != 42 {
		t.Errorf("drefi = %d, want 42", got)
	}

	want := "MEMALLOC: heap[0] = 4\nASSREF: heap[0] = 42\nDREF: heap[0] = 42\n"
	if h.out.String() != want {
		t.Errorf("diagnostics = %q, want %q", h.out.String(), want)
	}
}

func TestNegativeValuesRoundTrip(t *testing.T) {
	h := newHarness(t, 1)

	loc := h.call("memalloc", 4)
	h.call("assignrefi", loc, uint64(0xFFFFFFFF)) // W1 = -1
	got := h.call("drefi", loc)
	if int64(got) != -1 {
		t.Errorf("drefi = 0x%x, want -1 sign-extended", got)
	}
}

func TestUpperRegisterBitsIgnored(t *testing.T) {
	h := newHarness(t, 2)

	// garbage in the upper half of X0 must not change the C int argument
	got := h.call("memalloc", 0xABCD000000000004)
	if got != 0 {
		t.Fatalf("memalloc = %d, want 0", got)
	}
	cell, err := h.env.Heap.Stat(0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.Size != 4 {
		t.Errorf("cell size = %d, want 4", cell.Size)
	}
}

func TestMemallocErrors(t *testing.T) {
	h := newHarness(t, 1)

	if got := int64(h.call("memalloc", 0)); got != AllocFailed {
		t.Errorf("memalloc(0) = %d, want %d", got, AllocFailed)
	}
	h.call("memalloc", 4)
	if got := int64(h.call("memalloc", 4)); got != AllocFailed {
		t.Errorf("memalloc on full heap = %d, want %d", got, AllocFailed)
	}

	last := h.calls[len(h.calls)-1]
	if !strings.Contains(last, "err=HeapExhausted") {
		t.Errorf("last call detail = %q, want HeapExhausted", last)
	}
	if !strings.Contains(h.calls[0], "err=InvalidSize") {
		t.Errorf("first call detail = %q, want InvalidSize", h.calls[0])
	}
}

func TestInvalidHandleCalls(t *testing.T) {
	h := newHarness(t, 2)
	h.call("memalloc", 4)
	h.call("assignrefi", 0, 7)

	if got := h.call("drefi", 5); got != 0 {
		t.Errorf("drefi(5) = %d, want 0", got)
	}
	h.call("assignrefi", uint64(0xFFFFFFFF), 9) // loc = -1

	v, err := h.env.Heap.Read(0)
	if err != nil || v != 7 {
		t.Errorf("heap[0] = %d, %v; want 7", v, err)
	}

	var rejected int
	for _, c := range h.calls {
		if strings.Contains(c, "err=InvalidHandle") {
			rejected++
		}
	}
	if rejected != 2 {
		t.Errorf("rejected calls = %d, want 2 (%v)", rejected, h.calls)
	}
}
