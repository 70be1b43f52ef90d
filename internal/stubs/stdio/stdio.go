// Package stdio provides the console and file shims used by sloth programs:
// print, println, puts, fputs, readln and filer. Output goes to the
// session's Env.Out, input comes from Env.In and files from Env.FS.
package stdio

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

const category = "stdio"

// EOF is the libc EOF value returned when a write fails.
const EOF = -1

// LineMax bounds a readln result, matching fgets(str, 127, stdin).
const LineMax = 126

// NotFound is the string filer hands back when a file cannot be read.
const NotFound = "File not found"

// Names lists the shims this package registers.
var Names = []string{"print", "println", "puts", "fputs", "readln", "filer"}

func init() {
	stubs.RegisterFunc(category, "print", stubPrint)
	stubs.RegisterFunc(category, "println", stubPrintln)
	stubs.RegisterFunc(category, "puts", stubPuts)
	stubs.RegisterFunc(category, "fputs", stubFputs)
	stubs.RegisterFunc(category, "readln", stubReadln)
	stubs.RegisterFunc(category, "filer", stubFiler)
}

// void print(char *str)
func stubPrint(emu *emulator.Emulator, env *stubs.Env) bool {
	emit(emu, env, "print", "", "")
	stubs.ReturnFromStub(emu)
	return false
}

// void println(char *str)
func stubPrintln(emu *emulator.Emulator, env *stubs.Env) bool {
	emit(emu, env, "println", "\n", "")
	stubs.ReturnFromStub(emu)
	return false
}

// int puts(const char *s)
func stubPuts(emu *emulator.Emulator, env *stubs.Env) bool {
	n, err := emit(emu, env, "puts", "\n", "")
	setResult(emu, n, err)
	stubs.ReturnFromStub(emu)
	return false
}

// int fputs(const char *s, FILE *stream)
// The stream is ignored; everything goes to Env.Out.
func stubFputs(emu *emulator.Emulator, env *stubs.Env) bool {
	n, err := emit(emu, env, "fputs", "", " stream="+stubs.FormatHex(emu.X(1)))
	setResult(emu, n, err)
	stubs.ReturnFromStub(emu)
	return false
}

// char *readln(void)
// Returns at most LineMax bytes of the next line, newline included when it
// fits. At end of input the result is an empty string.
func stubReadln(emu *emulator.Emulator, env *stubs.Env) bool {
	line, err := readLine(env)
	if err != nil {
		stubs.DefaultRegistry.Log(category, "readln", "err="+err.Error())
	}

	ptr, aerr := emu.AllocString(line)
	if aerr != nil {
		stubs.DefaultRegistry.Log(category, "readln", "err="+aerr.Error())
		emu.SetX(0, 0)
		stubs.ReturnFromStub(emu)
		return false
	}

	if err == nil {
		stubs.DefaultRegistry.Log(category, "readln", fmt.Sprintf("%q -> %s", line, stubs.FormatHex(ptr)))
	}
	emu.SetX(0, ptr)
	stubs.ReturnFromStub(emu)
	return false
}

// char *filer(char *path)
// Returns the file contents, or NotFound when the file cannot be read.
func stubFiler(emu *emulator.Emulator, env *stubs.Env) bool {
	path, err := emu.MemReadString(emu.X(0), 0)
	if err != nil {
		stubs.DefaultRegistry.Log(category, "filer", "err="+err.Error())
		emu.SetX(0, 0)
		stubs.ReturnFromStub(emu)
		return false
	}

	contents := NotFound
	data, err := readFile(env, path)
	if err != nil {
		stubs.DefaultRegistry.Log(category, "filer", fmt.Sprintf("%q err=%v", path, err))
	} else {
		contents = string(data)
	}

	ptr, err := emu.AllocString(contents)
	if err != nil {
		stubs.DefaultRegistry.Log(category, "filer", fmt.Sprintf("%q err=%v", path, err))
		emu.SetX(0, 0)
		stubs.ReturnFromStub(emu)
		return false
	}

	if data != nil {
		stubs.DefaultRegistry.Log(category, "filer", fmt.Sprintf("%q size=%d -> %s", path, len(data), stubs.FormatHex(ptr)))
	}
	emu.SetX(0, ptr)
	stubs.ReturnFromStub(emu)
	return false
}

// emit reads the C string in X0 and writes it plus suffix to Env.Out.
func emit(emu *emulator.Emulator, env *stubs.Env, name, suffix, extra string) (int, error) {
	s, err := emu.MemReadString(emu.X(0), 0)
	if err != nil {
		stubs.DefaultRegistry.Log(category, name, fmt.Sprintf("ptr=%s err=%v%s", stubs.FormatHex(emu.X(0)), err, extra))
		return 0, err
	}

	n, err := write(env.Out, s+suffix)
	if err != nil {
		stubs.DefaultRegistry.Log(category, name, fmt.Sprintf("%q err=%v%s", s, err, extra))
		return n, err
	}
	stubs.DefaultRegistry.Log(category, name, fmt.Sprintf("%q%s", s, extra))
	return n, nil
}

func write(w io.Writer, s string) (int, error) {
	if w == nil {
		return len(s), nil
	}
	return io.WriteString(w, s)
}

func readLine(env *stubs.Env) (string, error) {
	if env.In == nil {
		return "", io.EOF
	}

	buf := make([]byte, 0, LineMax)
	for len(buf) < LineMax {
		b, err := env.In.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return string(buf), nil
			}
			return string(buf), err
		}
		buf = append(buf, b)
		if b == '\n' {
			break
		}
	}
	return string(buf), nil
}

func readFile(env *stubs.Env, path string) ([]byte, error) {
	fs := env.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return afero.ReadFile(fs, path)
}

func setResult(emu *emulator.Emulator, n int, err error) {
	if err != nil {
		stubs.SetInt(emu, EOF)
		return
	}
	stubs.SetInt(emu, int32(n))
}
