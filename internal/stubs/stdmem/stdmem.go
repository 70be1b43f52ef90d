// Package stdmem provides the heap shims sloth programs link against:
//
//	int  memalloc(int size);
//	int  drefi(int loc);
//	void assignrefi(int loc, int num);
//
// Each call is routed to the session heap. Native code cannot receive a Go
// error, so rejected calls return a sentinel (-1 from memalloc, 0 from drefi)
// and report the error kind in the trace detail.
package stdmem

import (
	"fmt"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/heap"
	"github.com/zboralski/sloth/internal/stubs"
)

const category = "stdmem"

// AllocFailed is returned to native code by a rejected memalloc.
const AllocFailed = -1

// Names lists the shims this package registers.
var Names = []string{"memalloc", "drefi", "assignrefi"}

func init() {
	stubs.RegisterFunc(category, "memalloc", stubMemalloc)
	stubs.RegisterFunc(category, "drefi", stubDrefi)
	stubs.RegisterFunc(category, "assignrefi", stubAssignrefi)
}

func stubMemalloc(emu *emulator.Emulator, env *stubs.Env) bool {
	size := stubs.ArgInt(emu, 0)

	h, err := env.Heap.Allocate(int(size))
	if err != nil {
		stubs.DefaultRegistry.Log(category, "memalloc", fmt.Sprintf("size=%d err=%s", size, heap.KindOf(err)))
		stubs.SetInt(emu, AllocFailed)
		stubs.ReturnFromStub(emu)
		return false
	}

	stubs.DefaultRegistry.Log(category, "memalloc", fmt.Sprintf("size=%d -> %d", size, h))
	stubs.SetInt(emu, int32(h))
	stubs.ReturnFromStub(emu)
	return false
}

func stubDrefi(emu *emulator.Emulator, env *stubs.Env) bool {
	loc := stubs.ArgInt(emu, 0)

	v, err := env.Heap.Read(heap.Handle(loc))
	if err != nil {
		stubs.DefaultRegistry.Log(category, "drefi", fmt.Sprintf("loc=%d err=%s", loc, heap.KindOf(err)))
		stubs.SetInt(emu, 0)
		stubs.ReturnFromStub(emu)
		return false
	}

	stubs.DefaultRegistry.Log(category, "drefi", fmt.Sprintf("loc=%d -> %d", loc, int32(v)))
	stubs.SetInt(emu, int32(v))
	stubs.ReturnFromStub(emu)
	return false
}

func stubAssignrefi(emu *emulator.Emulator, env *stubs.Env) bool {
	loc := stubs.ArgInt(emu, 0)
	num := stubs.ArgInt(emu, 1)

	if err := env.Heap.Write(heap.Handle(loc), int64(num)); err != nil {
		stubs.DefaultRegistry.Log(category, "assignrefi", fmt.Sprintf("loc=%d num=%d err=%s", loc, num, heap.KindOf(err)))
	} else {
		stubs.DefaultRegistry.Log(category, "assignrefi", fmt.Sprintf("loc=%d num=%d", loc, num))
	}
	stubs.ReturnFromStub(emu)
	return false
}
