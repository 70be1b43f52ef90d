// Package emulator runs compiled sloth programs (ARM64) using Unicorn Engine.
package emulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Memory layout constants
const (
	CodeBase  = 0x00010000
	CodeSize  = 0x01000000 // 16MB for code
	StackBase = 0x80000000
	StackSize = 0x00100000 // 1MB stack
	DataBase  = 0x90000000
	DataSize  = 0x00100000 // 1MB scratch for host-provided data
	StubBase  = 0xF0000000 // Shim entry points mapped here
	StubSize  = 0x00100000 // 1MB for shims

	// StubSlotSize is the spacing of shim entry points in the stub region.
	StubSlotSize = 0x10
)

// ErrDataExhausted is returned by Alloc when the data region is full.
var ErrDataExhausted = errors.New("data region exhausted")

// ARM64 RET
var retInsn = []byte{0xc0, 0x03, 0x5f, 0xd6}

// CodeHookFunc is called for each instruction
type CodeHookFunc func(emu *Emulator, addr uint64, size uint32)

// AddressHookFunc is called when execution reaches a specific address
type AddressHookFunc func(emu *Emulator) bool // return true to stop emulation

// Emulator wraps Unicorn for ARM64 emulation
type Emulator struct {
	mu uc.Unicorn

	// Hooks
	codeHooks   []CodeHookFunc
	addrHooks   map[uint64]AddressHookFunc
	addrHooksMu sync.RWMutex

	// Stop flag
	stopped bool

	// Bump cursor into the data region
	dataMu   sync.Mutex
	dataNext uint64
}

// New creates a new ARM64 emulator
func New() (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	emu := &Emulator{
		mu:        mu,
		addrHooks: make(map[uint64]AddressHookFunc),
		dataNext:  DataBase,
	}

	if err := emu.mapMemory(); err != nil {
		mu.Close()
		return nil, err
	}

	if err := emu.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return emu, nil
}

// mapMemory sets up the memory layout
func (e *Emulator) mapMemory() error {
	regions := []struct {
		base uint64
		size uint64
		name string
	}{
		{CodeBase, CodeSize, "code"},
		{StackBase, StackSize, "stack"},
		{DataBase, DataSize, "data"},
		{StubBase, StubSize, "stubs"},
	}

	for _, r := range regions {
		if err := e.mu.MemMap(r.base, r.size); err != nil {
			return fmt.Errorf("map %s (0x%x): %w", r.name, r.base, err)
		}
	}

	sp := uint64(StackBase + StackSize - 0x1000)
	if err := e.mu.RegWrite(uc.ARM64_REG_SP, sp); err != nil {
		return fmt.Errorf("set SP: %w", err)
	}

	// Every stub slot is a RET so a shim that forgets to redirect PC still returns.
	slots := make([]byte, StubSize)
	for off := 0; off+len(retInsn) <= len(slots); off += StubSlotSize {
		copy(slots[off:], retInsn)
	}
	if err := e.mu.MemWrite(StubBase, slots); err != nil {
		return fmt.Errorf("init stub slots: %w", err)
	}

	return nil
}

// StubAddress returns the entry point of the i-th slot in the stub region.
func StubAddress(i int) uint64 {
	return StubBase + uint64(i)*StubSlotSize
}

// setupHooks initializes Unicorn hooks
func (e *Emulator) setupHooks() error {
	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}

		e.addrHooksMu.RLock()
		hook, ok := e.addrHooks[addr]
		e.addrHooksMu.RUnlock()

		if ok {
			if hook(e) {
				e.Stop()
				return
			}
		}

		for _, h := range e.codeHooks {
			h(e, addr, size)
		}
	}, 1, 0)

	return err
}

// Close releases resources
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// LoadCode writes code at the code base
func (e *Emulator) LoadCode(code []byte) error {
	return e.mu.MemWrite(CodeBase, code)
}

// MapRegion maps additional memory
func (e *Emulator) MapRegion(addr, size uint64) error {
	return e.mu.MemMap(addr, size)
}

// MemRead reads bytes from memory
func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// MemWrite writes bytes to memory
func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemReadU64 reads a uint64 from memory (little endian)
func (e *Emulator) MemReadU64(addr uint64) (uint64, error) {
	data, err := e.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// MemWriteU64 writes a uint64 to memory (little endian)
func (e *Emulator) MemWriteU64(addr, val uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, val)
	return e.mu.MemWrite(addr, data)
}

// MemReadString reads a null-terminated string from memory.
// Reads byte-wise past maxLen only up to the end of the mapping.
func (e *Emulator) MemReadString(addr uint64, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 4096
	}
	data, err := e.mu.MemRead(addr, uint64(maxLen))
	if err != nil {
		// string may sit close to the end of its mapping
		data, err = e.readUntilUnmapped(addr, maxLen)
		if err != nil {
			return "", err
		}
	}

	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

func (e *Emulator) readUntilUnmapped(addr uint64, maxLen int) ([]byte, error) {
	var out []byte
	for i := 0; i < maxLen; i++ {
		b, err := e.mu.MemRead(addr+uint64(i), 1)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			break
		}
		out = append(out, b[0])
		if b[0] == 0 {
			break
		}
	}
	return out, nil
}

// MemWriteString writes a null-terminated string to memory
func (e *Emulator) MemWriteString(addr uint64, s string) error {
	data := append([]byte(s), 0)
	return e.mu.MemWrite(addr, data)
}

// Alloc reserves size bytes in the data region for host-provided buffers
// (strings returned to native code). Memory is never reclaimed.
func (e *Emulator) Alloc(size uint64) (uint64, error) {
	// Align to 16 bytes
	size = (size + 15) &^ uint64(15)
	if size == 0 {
		size = 16
	}

	e.dataMu.Lock()
	defer e.dataMu.Unlock()

	if size > DataBase+DataSize-e.dataNext {
		return 0, fmt.Errorf("alloc %d bytes: %w", size, ErrDataExhausted)
	}
	addr := e.dataNext
	e.dataNext += size
	return addr, nil
}

// AllocString copies s, NUL-terminated, into the data region.
func (e *Emulator) AllocString(s string) (uint64, error) {
	addr, err := e.Alloc(uint64(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	if err := e.MemWriteString(addr, s); err != nil {
		return 0, err
	}
	return addr, nil
}

// S reads single-precision register S0-S31.
func (e *Emulator) S(n int) float32 {
	if n < 0 || n > 31 {
		return 0
	}
	val, _ := e.mu.RegRead(uc.ARM64_REG_S0 + n)
	return math.Float32frombits(uint32(val))
}

// SetS writes single-precision register S0-S31.
func (e *Emulator) SetS(n int, f float32) error {
	if n < 0 || n > 31 {
		return fmt.Errorf("invalid register S%d", n)
	}
	return e.mu.RegWrite(uc.ARM64_REG_S0+n, uint64(math.Float32bits(f)))
}

// X reads general-purpose register X0-X30
func (e *Emulator) X(n int) uint64 {
	if n < 0 || n > 30 {
		return 0
	}
	val, _ := e.mu.RegRead(uc.ARM64_REG_X0 + n)
	return val
}

// SetX writes general-purpose register X0-X30
func (e *Emulator) SetX(n int, val uint64) error {
	if n < 0 || n > 30 {
		return fmt.Errorf("invalid register X%d", n)
	}
	return e.mu.RegWrite(uc.ARM64_REG_X0+n, val)
}

// PC returns the program counter
func (e *Emulator) PC() uint64 {
	pc, _ := e.mu.RegRead(uc.ARM64_REG_PC)
	return pc
}

// SetPC sets the program counter
func (e *Emulator) SetPC(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_PC, val)
}

// SP returns the stack pointer
func (e *Emulator) SP() uint64 {
	sp, _ := e.mu.RegRead(uc.ARM64_REG_SP)
	return sp
}

// LR returns the link register
func (e *Emulator) LR() uint64 {
	lr, _ := e.mu.RegRead(uc.ARM64_REG_LR)
	return lr
}

// SetLR sets the link register
func (e *Emulator) SetLR(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_LR, val)
}

// HookCode adds a code hook called for every instruction
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// HookAddress adds a hook for a specific address
func (e *Emulator) HookAddress(addr uint64, fn AddressHookFunc) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	e.addrHooks[addr] = fn
}

// RemoveAddressHook removes an address hook
func (e *Emulator) RemoveAddressHook(addr uint64) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	delete(e.addrHooks, addr)
}

// Run starts emulation from start until end is reached
func (e *Emulator) Run(start, end uint64) error {
	e.stopped = false
	return e.mu.Start(start, end)
}

// RunFrom starts emulation from start and runs until stopped
func (e *Emulator) RunFrom(start uint64) error {
	e.stopped = false
	return e.mu.Start(start, 0)
}

// Stop stops emulation
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}

// Stopped reports whether the last run was stopped by a hook.
func (e *Emulator) Stopped() bool {
	return e.stopped
}
