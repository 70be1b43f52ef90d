// Package stubs provides a registry for self-registering runtime shims.
// Each shim package uses init() to register its hooks; a session binds them to
// an emulator and an Env carrying the heap and output stream.
package stubs

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/heap"
	glog "github.com/zboralski/sloth/internal/log"
)

// Env is the per-session state shims operate on.
type Env struct {
	Heap *heap.Heap
	Out  io.Writer
	In   *bufio.Reader // readln
	FS   afero.Fs      // filer
	Rand *rand.Rand    // rand, randGen

	// Sleep backs wait; nil skips the delay.
	Sleep func(time.Duration)

	// Set by exit/abort shims.
	Exited   bool
	ExitCode int
}

// NewEnv creates an Env wired to the process: stdout, stdin, the OS
// filesystem and a time-seeded random source.
func NewEnv(h *heap.Heap) *Env {
	seed := uint64(time.Now().UnixNano())
	return &Env{
		Heap:  h,
		Out:   os.Stdout,
		In:    bufio.NewReader(os.Stdin),
		FS:    afero.NewOsFs(),
		Rand:  rand.New(rand.NewPCG(seed, seed>>32|1)),
		Sleep: time.Sleep,
	}
}

// HookFunc is the signature for shim hook functions.
// Returns true to stop emulation, false to continue.
type HookFunc func(emu *emulator.Emulator, env *Env) bool

// StubDef defines a shim with its symbol name and hook function.
type StubDef struct {
	Name     string   // Symbol name (e.g., "memalloc", "puts")
	Aliases  []string // Alternative symbol names
	Hook     HookFunc
	Category string // For logging: "stdmem", "stdio", "libc"
}

// Registry holds all registered shim definitions.
type Registry struct {
	mu    sync.RWMutex
	stubs map[string]*StubDef // symbol name -> definition

	// OnCall is invoked for every shim call reported through Log.
	OnCall func(category, name, detail string)

	// Emulator reference (set during Install)
	emu *emulator.Emulator
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new shim registry.
func NewRegistry() *Registry {
	return &Registry{
		stubs: make(map[string]*StubDef),
	}
}

// Register adds a shim definition to the registry.
func (r *Registry) Register(def StubDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stubs[def.Name] = &def
	for _, alias := range def.Aliases {
		r.stubs[alias] = &def
	}

	if Debug && glog.L != nil {
		glog.L.Debug("registered",
			zap.String("cat", def.Category),
			zap.String("fn", def.Name),
			zap.Strings("aliases", def.Aliases),
		)
	}
}

// RegisterFunc is a convenience method to register a simple shim.
func (r *Registry) RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	r.Register(StubDef{
		Name:     name,
		Aliases:  aliases,
		Hook:     hook,
		Category: category,
	})
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*StubDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.stubs[name]
	return def, ok
}

// Install hooks all registered shims at their import addresses.
// When InstallFallbacks is true, remaining imports get a shim returning 0.
//
// Parameters:
//   - imports: PLT addresses for external symbols (fallbacks applied here)
//   - symbols: optional additional symbol maps (no fallbacks)
func (r *Registry) Install(emu *emulator.Emulator, env *Env, imports map[string]uint64, symbols ...map[string]uint64) int {
	r.mu.Lock()
	r.emu = emu
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	installed := 0
	seen := make(map[uint64]bool)

	install := func(name string, def *StubDef, addr uint64, source string) {
		if addr == 0 || seen[addr] {
			return
		}
		seen[addr] = true
		hook := def.Hook
		emu.HookAddress(addr, func(e *emulator.Emulator) bool {
			return hook(e, env)
		})
		installed++

		if Debug && glog.L != nil {
			glog.L.StubInstall(def.Category, name, addr, source)
		}
	}

	for _, name := range sortedKeys(r.stubs) {
		install(name, r.stubs[name], imports[name], "import")
	}
	for _, syms := range symbols {
		for _, name := range sortedKeys(r.stubs) {
			install(name, r.stubs[name], syms[name], "internal")
		}
	}

	if InstallFallbacks {
		for name, addr := range imports {
			if addr == 0 || seen[addr] {
				continue
			}
			seen[addr] = true

			symName := name
			emu.HookAddress(addr, func(e *emulator.Emulator) bool {
				r.Log("fallback", symName, "")
				if Debug && glog.L != nil {
					glog.L.StubFallback(symName)
				}
				e.SetX(0, 0)
				ReturnFromStub(e)
				return false
			})
			installed++
		}
	}

	return installed
}

// InstallAt hooks the named shim at a fixed address.
func (r *Registry) InstallAt(emu *emulator.Emulator, env *Env, name string, addr uint64) error {
	def, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("no shim registered for %q", name)
	}

	r.mu.Lock()
	r.emu = emu
	r.mu.Unlock()

	hook := def.Hook
	emu.HookAddress(addr, func(e *emulator.Emulator) bool {
		return hook(e, env)
	})
	return nil
}

// Log calls the OnCall callback and logs via zap.
// This is the primary method for shims to report their activity.
func (r *Registry) Log(category, name, detail string) {
	r.mu.RLock()
	cb := r.OnCall
	emu := r.emu
	r.mu.RUnlock()

	var pc uint64
	if emu != nil {
		pc = emu.LR() // return address of the shim call
	}

	if cb != nil {
		cb(category, name, detail)
	}

	if glog.L != nil {
		glog.L.Trace(pc, category, name, detail)
	}
}

// Count returns the number of registered names, aliases included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stubs)
}

// List returns the primary names of all registered shims, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	names := make([]string, 0, len(r.stubs))
	for _, def := range r.stubs {
		if seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]*StubDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Debug enables verbose logging during installation.
var Debug = false

// InstallFallbacks enables fallback shims for unknown imports.
var InstallFallbacks = true

// Register adds a shim to the default registry.
func Register(def StubDef) {
	DefaultRegistry.Register(def)
}

// RegisterFunc adds a simple shim to the default registry.
func RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	DefaultRegistry.RegisterFunc(category, name, hook, aliases...)
}

// Install hooks all shims in the default registry.
func Install(emu *emulator.Emulator, env *Env, imports map[string]uint64, symbols ...map[string]uint64) int {
	return DefaultRegistry.Install(emu, env, imports, symbols...)
}

// Helper functions for shims

// ReturnFromStub sets PC to LR to return from the current function.
func ReturnFromStub(emu *emulator.Emulator) {
	emu.SetPC(emu.LR())
}

// ArgInt reads argument n as a C int: the low 32 bits of Xn, sign-extended.
// AAPCS64 leaves the upper half of a W-register argument unspecified.
func ArgInt(emu *emulator.Emulator, n int) int32 {
	return int32(uint32(emu.X(n)))
}

// SetInt sets the C int return value in X0.
func SetInt(emu *emulator.Emulator, v int32) {
	emu.SetX(0, uint64(int64(v)))
}

// FormatHex formats a value as hex string.
func FormatHex(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}
