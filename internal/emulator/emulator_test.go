package emulator

import (
	"testing"
)

// ARM64 test code: MOV X0, #5; MOV X1, #3; ADD X2, X0, X1; RET
var addTestCode = []byte{
	0xa0, 0x00, 0x80, 0xd2, // MOV X0, #5
	0x61, 0x00, 0x80, 0xd2, // MOV X1, #3
	0x02, 0x00, 0x01, 0x8b, // ADD X2, X0, X1
	0xc0, 0x03, 0x5f, 0xd6, // RET
}

func TestEmulatorBasic(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	if err := emu.SetLR(0xDEADBEEF); err != nil {
		t.Fatalf("Failed to set LR: %v", err)
	}

	endAddr := CodeBase + uint64(len(addTestCode))
	err = emu.Run(CodeBase, endAddr)
	// RET to the sentinel faults with fetch unmapped
	if err != nil {
		t.Logf("Expected stop error: %v", err)
	}

	if x2 := emu.X(2); x2 != 8 {
		t.Errorf("Expected X2=8, got X2=%d", x2)
	}
	if emu.X(0) != 5 {
		t.Errorf("Expected X0=5, got X0=%d", emu.X(0))
	}
	if emu.X(1) != 3 {
		t.Errorf("Expected X1=3, got X1=%d", emu.X(1))
	}
}

func TestMemoryOperations(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	addr := uint64(DataBase)
	val := uint64(0x123456789ABCDEF0)

	if err := emu.MemWriteU64(addr, val); err != nil {
		t.Fatalf("Failed to write U64: %v", err)
	}
	readVal, err := emu.MemReadU64(addr)
	if err != nil {
		t.Fatalf("Failed to read U64: %v", err)
	}
	if readVal != val {
		t.Errorf("U64 mismatch: wrote 0x%x, read 0x%x", val, readVal)
	}

	strAddr := uint64(DataBase + 0x100)
	testStr := "hello from sloth"
	if err := emu.MemWriteString(strAddr, testStr); err != nil {
		t.Fatalf("Failed to write string: %v", err)
	}
	readStr, err := emu.MemReadString(strAddr, 64)
	if err != nil {
		t.Fatalf("Failed to read string: %v", err)
	}
	if readStr != testStr {
		t.Errorf("String mismatch: wrote %q, read %q", testStr, readStr)
	}
}

func TestMemReadStringNearMappingEnd(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	// 4 bytes before the end of the data region, no room for a 4096-byte read
	addr := uint64(DataBase + DataSize - 4)
	if err := emu.MemWriteString(addr, "abc"); err != nil {
		t.Fatalf("Failed to write string: %v", err)
	}
	got, err := emu.MemReadString(addr, 0)
	if err != nil {
		t.Fatalf("MemReadString: %v", err)
	}
	if got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestStubSlotsReturn(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	for _, i := range []int{0, 1, 100} {
		addr := StubAddress(i)
		code, err := emu.MemRead(addr, 4)
		if err != nil {
			t.Fatalf("read stub slot %d: %v", i, err)
		}
		if string(code) != string(retInsn) {
			t.Errorf("stub slot %d = %x, want RET", i, code)
		}
	}
	if StubAddress(2)-StubAddress(1) != StubSlotSize {
		t.Errorf("stub slots not %d bytes apart", StubSlotSize)
	}
}

func TestAddressHook(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	hookCalled := false
	secondInstrAddr := uint64(CodeBase + 4)
	emu.HookAddress(secondInstrAddr, func(e *Emulator) bool {
		hookCalled = true
		return false
	})

	if err := emu.SetLR(0xDEADBEEF); err != nil {
		t.Fatalf("Failed to set LR: %v", err)
	}

	endAddr := CodeBase + uint64(len(addTestCode))
	_ = emu.Run(CodeBase, endAddr)

	if !hookCalled {
		t.Error("Address hook was not called")
	}
}

func TestAddressHookStops(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	emu.HookAddress(CodeBase+8, func(e *Emulator) bool { return true })
	emu.SetLR(0xDEADBEEF)

	_ = emu.Run(CodeBase, CodeBase+uint64(len(addTestCode)))

	if !emu.Stopped() {
		t.Error("Expected emulator to report stopped")
	}

	emu.RemoveAddressHook(CodeBase + 8)
	emu.SetX(2, 0)
	_ = emu.Run(CodeBase, CodeBase+uint64(len(addTestCode)))
	if emu.X(2) != 8 {
		t.Errorf("Expected X2=8 after removing hook, got %d", emu.X(2))
	}
}

func TestCodeHook(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	instrCount := 0
	emu.HookCode(func(e *Emulator, addr uint64, size uint32) {
		instrCount++
	})

	if err := emu.SetLR(0xDEADBEEF); err != nil {
		t.Fatalf("Failed to set LR: %v", err)
	}

	endAddr := CodeBase + uint64(len(addTestCode))
	_ = emu.Run(CodeBase, endAddr)

	if instrCount != 4 {
		t.Errorf("Expected 4 instructions, got %d", instrCount)
	}
}

func TestSetXRange(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.SetX(31, 1); err == nil {
		t.Error("SetX(31) should fail")
	}
	if emu.X(-1) != 0 {
		t.Error("X(-1) should read as 0")
	}
}

func TestAllocDataRegion(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	a, err := emu.Alloc(5)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	b, err := emu.Alloc(1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a != DataBase || b != DataBase+16 {
		t.Errorf("Alloc addresses = 0x%x, 0x%x; want 16-byte aligned from DataBase", a, b)
	}

	s, err := emu.AllocString("line")
	if err != nil {
		t.Fatalf("AllocString: %v", err)
	}
	if got, _ := emu.MemReadString(s, 0); got != "line" {
		t.Errorf("AllocString read back %q", got)
	}

	if _, err := emu.Alloc(DataSize); err == nil {
		t.Error("expected ErrDataExhausted")
	}
}

func TestFloatRegisters(t *testing.T) {
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	if err := emu.SetS(0, 3.75); err != nil {
		t.Fatalf("SetS: %v", err)
	}
	if got := emu.S(0); got != 3.75 {
		t.Errorf("S0 = %v, want 3.75", got)
	}
	if err := emu.SetS(32, 1); err == nil {
		t.Error("SetS(32) should fail")
	}
}
