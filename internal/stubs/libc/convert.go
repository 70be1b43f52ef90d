package libc

import (
	"fmt"
	"math"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

func init() {
	stubs.RegisterFunc(category, "parse_int", stubParseInt)
	stubs.RegisterFunc(category, "as_int", stubAsInt)
}

// atoi parses like glibc: leading whitespace, optional sign, decimal digits
// up to the first non-digit. Overflow saturates at the long range and the
// result is then narrowed to int.
func atoi(s string) int32 {
	i := 0
	for i < len(s) && (s[i] == ' ' || (s[i] >= '\t' && s[i] <= '\r')) {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var v uint64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if v > (math.MaxUint64-9)/10 {
			v = math.MaxUint64
			continue
		}
		v = v*10 + uint64(s[i]-'0')
	}

	var n int64
	switch {
	case neg && v > 1<<63:
		n = math.MinInt64
	case neg:
		n = -int64(v)
	case v > math.MaxInt64:
		n = math.MaxInt64
	default:
		n = int64(v)
	}
	return int32(n)
}

// int parse_int(char *str)
func stubParseInt(emu *emulator.Emulator, env *stubs.Env) bool {
	s, err := emu.MemReadString(emu.X(0), 0)
	if err != nil {
		stubs.DefaultRegistry.Log(category, "parse_int", fmt.Sprintf("ptr=%s err=%v", stubs.FormatHex(emu.X(0)), err))
		stubs.SetInt(emu, 0)
		stubs.ReturnFromStub(emu)
		return false
	}

	v := atoi(s)
	stubs.DefaultRegistry.Log(category, "parse_int", fmt.Sprintf("%q -> %d", s, v))
	stubs.SetInt(emu, v)
	stubs.ReturnFromStub(emu)
	return false
}

// truncate converts toward zero, saturating at the int range; NaN is 0.
func truncate(f float32) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// int as_int(float x)
func stubAsInt(emu *emulator.Emulator, env *stubs.Env) bool {
	f := emu.S(0)
	v := truncate(f)
	stubs.DefaultRegistry.Log(category, "as_int", fmt.Sprintf("%g -> %d", f, v))
	stubs.SetInt(emu, v)
	stubs.ReturnFromStub(emu)
	return false
}
