package libc

import (
	"fmt"
	"math/rand/v2"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

func init() {
	stubs.RegisterFunc(category, "rand", stubRand)
	stubs.RegisterFunc(category, "randGen", stubRandGen)
}

func uint64n(env *stubs.Env, n uint64) uint64 {
	if env.Rand != nil {
		return env.Rand.Uint64N(n)
	}
	return rand.Uint64N(n)
}

// int64_t rand(int64_t a, int64_t b)
// Uniform in [a, b). An empty range returns a.
func stubRand(emu *emulator.Emulator, env *stubs.Env) bool {
	a, b := int64(emu.X(0)), int64(emu.X(1))
	if b <= a {
		stubs.DefaultRegistry.Log(category, "rand", fmt.Sprintf("a=%d b=%d err=range", a, b))
		emu.SetX(0, uint64(a))
		stubs.ReturnFromStub(emu)
		return false
	}

	v := a + int64(uint64n(env, uint64(b)-uint64(a)))
	stubs.DefaultRegistry.Log(category, "rand", fmt.Sprintf("a=%d b=%d -> %d", a, b, v))
	emu.SetX(0, uint64(v))
	stubs.ReturnFromStub(emu)
	return false
}

// int randGen(int min, int max)
// Uniform in [min, max]. max < min returns min.
func stubRandGen(emu *emulator.Emulator, env *stubs.Env) bool {
	lo, hi := stubs.ArgInt(emu, 0), stubs.ArgInt(emu, 1)
	if hi < lo {
		stubs.DefaultRegistry.Log(category, "randGen", fmt.Sprintf("min=%d max=%d err=range", lo, hi))
		stubs.SetInt(emu, lo)
		stubs.ReturnFromStub(emu)
		return false
	}

	span := uint64(int64(hi)-int64(lo)) + 1
	v := int32(int64(lo) + int64(uint64n(env, span)))
	stubs.DefaultRegistry.Log(category, "randGen", fmt.Sprintf("min=%d max=%d -> %d", lo, hi, v))
	stubs.SetInt(emu, v)
	stubs.ReturnFromStub(emu)
	return false
}
