package stdio

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/heap"
	"github.com/zboralski/sloth/internal/stubs"
)

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

type harness struct {
	emu   *emulator.Emulator
	env   *stubs.Env
	out   *bytes.Buffer
	calls []string
}

func setup(t *testing.T) *harness {
	t.Helper()

	emu, err := emulator.New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	t.Cleanup(func() { emu.Close() })

	h := &harness{emu: emu, out: &bytes.Buffer{}}
	h.env = stubs.NewEnv(heap.New(1))
	h.env.Out = h.out
	h.env.In = bufio.NewReader(strings.NewReader(""))
	h.env.FS = afero.NewMemMapFs()

	for i, name := range Names {
		if err := stubs.DefaultRegistry.InstallAt(emu, h.env, name, emulator.StubAddress(i)); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
	}

	stubs.DefaultRegistry.OnCall = func(category, name, detail string) {
		h.calls = append(h.calls, name+" "+detail)
	}
	t.Cleanup(func() { stubs.DefaultRegistry.OnCall = nil })
	return h
}

func slot(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	return -1
}

func (h *harness) call(name string, x0 uint64) uint64 {
	h.emu.SetX(0, x0)
	h.emu.SetX(1, 0x1234) // stream, ignored
	h.emu.SetLR(0xDEADBEEF)

	addr := emulator.StubAddress(slot(name))
	_ = h.emu.Run(addr, addr+4)
	return h.emu.X(0)
}

func (h *harness) callWithString(t *testing.T, name, s string) uint64 {
	t.Helper()

	ptr, err := h.emu.AllocString(s)
	if err != nil {
		t.Fatalf("AllocString: %v", err)
	}
	return h.call(name, ptr)
}

func (h *harness) lastCall() string {
	if len(h.calls) == 0 {
		return ""
	}
	return h.calls[len(h.calls)-1]
}

func TestPrint(t *testing.T) {
	h := setup(t)

	h.callWithString(t, "print", "hello")
	h.callWithString(t, "print", " world")

	if h.out.String() != "hello world" {
		t.Errorf("output = %q, want %q", h.out.String(), "hello world")
	}
}

func TestPrintln(t *testing.T) {
	h := setup(t)

	h.callWithString(t, "println", "a")
	h.callWithString(t, "println", "b")

	if h.out.String() != "a\nb\n" {
		t.Errorf("output = %q", h.out.String())
	}
}

func TestPutsAppendsNewline(t *testing.T) {
	h := setup(t)

	ret := h.callWithString(t, "puts", "heap ready")
	if h.out.String() != "heap ready\n" {
		t.Errorf("output = %q", h.out.String())
	}
	if int64(ret) < 0 {
		t.Errorf("puts returned %d, want non-negative", int64(ret))
	}
}

func TestFputs(t *testing.T) {
	h := setup(t)

	h.callWithString(t, "fputs", "no newline")
	if h.out.String() != "no newline" {
		t.Errorf("output = %q", h.out.String())
	}
	if !strings.Contains(h.lastCall(), "stream=0x1234") {
		t.Errorf("detail = %q", h.lastCall())
	}
}

func TestWriteFailureReturnsEOF(t *testing.T) {
	h := setup(t)
	h.env.Out = failWriter{}

	ret := h.callWithString(t, "puts", "lost")
	if int64(ret) != EOF {
		t.Errorf("puts returned %d, want EOF", int64(ret))
	}
}

func TestBadPointer(t *testing.T) {
	const unmapped = 0x1000

	for _, name := range []string{"puts", "fputs"} {
		t.Run(name, func(t *testing.T) {
			h := setup(t)

			ret := h.call(name, unmapped)
			if int64(ret) != EOF {
				t.Errorf("%s returned %d, want EOF", name, int64(ret))
			}
			if h.out.Len() != 0 {
				t.Errorf("unexpected output %q", h.out.String())
			}
			if !strings.Contains(h.lastCall(), "err=") {
				t.Errorf("detail = %q, want err=", h.lastCall())
			}
		})
	}

	h := setup(t)
	h.call("print", unmapped)
	if !strings.Contains(h.lastCall(), "err=") {
		t.Errorf("print detail = %q, want err=", h.lastCall())
	}
}

func TestReadln(t *testing.T) {
	h := setup(t)
	h.env.In = bufio.NewReader(strings.NewReader("first line\nsecond"))

	for _, want := range []string{"first line\n", "second", ""} {
		ptr := h.call("readln", 0)
		if ptr == 0 {
			t.Fatal("readln returned NULL")
		}
		got, err := h.emu.MemReadString(ptr, 0)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("readln = %q, want %q", got, want)
		}
	}
	if !strings.Contains(h.lastCall(), "err=EOF") {
		t.Errorf("detail at end of input = %q", h.lastCall())
	}
}

func TestReadlnBoundsLine(t *testing.T) {
	h := setup(t)
	long := strings.Repeat("x", 200) + "\n"
	h.env.In = bufio.NewReader(strings.NewReader(long))

	got, _ := h.emu.MemReadString(h.call("readln", 0), 0)
	if len(got) != LineMax {
		t.Errorf("len(readln) = %d, want %d", len(got), LineMax)
	}
	rest, _ := h.emu.MemReadString(h.call("readln", 0), 0)
	if rest != strings.Repeat("x", 74)+"\n" {
		t.Errorf("second readln = %q", rest)
	}
}

func TestFiler(t *testing.T) {
	h := setup(t)
	if err := afero.WriteFile(h.env.FS, "/prog/data.txt", []byte("1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, _ := h.emu.MemReadString(h.callWithString(t, "filer", "/prog/data.txt"), 0)
	if got != "1 2 3\n" {
		t.Errorf("filer = %q", got)
	}

	got, _ = h.emu.MemReadString(h.callWithString(t, "filer", "/prog/missing.txt"), 0)
	if got != NotFound {
		t.Errorf("filer(missing) = %q, want %q", got, NotFound)
	}
	if !strings.Contains(h.lastCall(), "err=") {
		t.Errorf("detail = %q", h.lastCall())
	}
}
