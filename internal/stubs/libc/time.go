package libc

import (
	"fmt"
	"time"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

func init() {
	stubs.RegisterFunc(category, "wait", stubWait)
	stubs.RegisterFunc(category, "nanosleep", stubNanosleep)
	stubs.RegisterFunc(category, "usleep", stubUsleep)
	stubs.RegisterFunc(category, "sleep", stubSleep)
}

func sleep(env *stubs.Env, d time.Duration) {
	if env.Sleep != nil && d > 0 {
		env.Sleep(d)
	}
}

// int wait(int msec)
// Returns -1 for a negative delay, 0 otherwise.
func stubWait(emu *emulator.Emulator, env *stubs.Env) bool {
	msec := stubs.ArgInt(emu, 0)
	if msec < 0 {
		stubs.DefaultRegistry.Log(category, "wait", fmt.Sprintf("msec=%d err=EINVAL", msec))
		stubs.SetInt(emu, -1)
		stubs.ReturnFromStub(emu)
		return false
	}

	sleep(env, time.Duration(msec)*time.Millisecond)
	stubs.DefaultRegistry.Log(category, "wait", fmt.Sprintf("msec=%d", msec))
	stubs.SetInt(emu, 0)
	stubs.ReturnFromStub(emu)
	return false
}

// int nanosleep(const struct timespec *req, struct timespec *rem)
func stubNanosleep(emu *emulator.Emulator, env *stubs.Env) bool {
	req := emu.X(0)
	sec, err1 := emu.MemReadU64(req)
	nsec, err2 := emu.MemReadU64(req + 8)
	if err1 != nil || err2 != nil || int64(sec) < 0 || nsec >= uint64(time.Second) {
		stubs.DefaultRegistry.Log(category, "nanosleep", fmt.Sprintf("req=%s err=EINVAL", stubs.FormatHex(req)))
		stubs.SetInt(emu, -1)
		stubs.ReturnFromStub(emu)
		return false
	}

	d := time.Duration(sec)*time.Second + time.Duration(nsec)
	sleep(env, d)
	stubs.DefaultRegistry.Log(category, "nanosleep", d.String())
	stubs.SetInt(emu, 0)
	stubs.ReturnFromStub(emu)
	return false
}

// int usleep(useconds_t usec)
func stubUsleep(emu *emulator.Emulator, env *stubs.Env) bool {
	usec := uint32(emu.X(0))
	sleep(env, time.Duration(usec)*time.Microsecond)
	stubs.DefaultRegistry.Log(category, "usleep", fmt.Sprintf("usec=%d", usec))
	stubs.SetInt(emu, 0)
	stubs.ReturnFromStub(emu)
	return false
}

// unsigned int sleep(unsigned int seconds)
func stubSleep(emu *emulator.Emulator, env *stubs.Env) bool {
	secs := uint32(emu.X(0))
	sleep(env, time.Duration(secs)*time.Second)
	stubs.DefaultRegistry.Log(category, "sleep", fmt.Sprintf("seconds=%d", secs))
	stubs.SetInt(emu, 0)
	stubs.ReturnFromStub(emu)
	return false
}
