package libc

import (
	"strconv"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

func init() {
	stubs.RegisterFunc(category, "abort", stubAbort)
	stubs.RegisterFunc(category, "exit", stubExit, "_exit", "_Exit")
	stubs.RegisterFunc(category, "atexit", stubAtexit)
}

func stubAbort(emu *emulator.Emulator, env *stubs.Env) bool {
	env.Exited = true
	env.ExitCode = AbortCode
	stubs.DefaultRegistry.Log(category, "abort", "program aborted")
	return true
}

// void exit(int status)
func stubExit(emu *emulator.Emulator, env *stubs.Env) bool {
	code := stubs.ArgInt(emu, 0)
	env.Exited = true
	env.ExitCode = int(code)
	stubs.DefaultRegistry.Log(category, "exit", strconv.Itoa(int(code)))
	return true
}

// int atexit(void (*function)(void))
// Handlers are never run, just report success.
func stubAtexit(emu *emulator.Emulator, env *stubs.Env) bool {
	stubs.SetInt(emu, 0)
	stubs.ReturnFromStub(emu)
	return false
}
