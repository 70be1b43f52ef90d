package emulator

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ARM64 relocation types
const (
	R_AARCH64_ABS64     = 257  // Absolute 64-bit symbol reference
	R_AARCH64_GLOB_DAT  = 1025 // GOT entry for global data symbol
	R_AARCH64_JUMP_SLOT = 1026 // PLT GOT entry for function call
	R_AARCH64_RELATIVE  = 1027 // Position-independent data reference
)

// ARM64 PLT layout: 32-byte header, 16 bytes per entry. RELA entries are 24 bytes.
const (
	pltHeaderSize = 32
	pltEntrySize  = 16
	relaEntrySize = 24
	pageSize      = 0x1000
)

// ErrNoLoadSegments is returned for ELF files without PT_LOAD segments.
var ErrNoLoadSegments = errors.New("no PT_LOAD segments found")

// ELFInfo contains parsed ELF metadata
type ELFInfo struct {
	Path     string
	Machine  elf.Machine
	Entry    uint64
	Symbols  map[string]uint64 // symbol name -> virtual address (all symbols)
	Imports  map[string]uint64 // symbol name -> PLT stub address (external imports only)
	Segments []Segment
	BaseAddr uint64 // Load base address
	EndAddr  uint64 // End of loaded memory
}

// Segment represents a loadable ELF segment
type Segment struct {
	VAddr uint64
	Size  uint64 // File size
	MemSz uint64 // Memory size (may be larger due to .bss)
	Flags elf.ProgFlag
}

// LoadELFBase is the default base address for position-independent executables.
const LoadELFBase = 0x40000000

// LoadELF loads an ELF file and maps it into the emulator.
// Position-independent executables (base addr 0) are relocated to LoadELFBase.
func (e *Emulator) LoadELF(path string) (*ELFInfo, error) {
	return e.LoadELFAt(path, 0)
}

// LoadELFAt loads an ELF file at a specific base address.
// A loadBase of 0 keeps fixed-address executables where they are and moves
// PIE files to LoadELFBase.
func (e *Emulator) LoadELFAt(path string, loadBase uint64) (*ELFInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("expected ARM64 (EM_AARCH64), got %v", f.Machine)
	}

	fileBase, fileEnd, ok := loadSpan(f)
	if !ok {
		return nil, ErrNoLoadSegments
	}

	var relocOffset uint64
	switch {
	case loadBase != 0:
		relocOffset = loadBase - fileBase
	case fileBase < 0x10000:
		relocOffset = LoadELFBase - fileBase
	}

	info := &ELFInfo{
		Path:     path,
		Machine:  f.Machine,
		Entry:    f.Entry + relocOffset,
		Symbols:  make(map[string]uint64),
		Imports:  make(map[string]uint64),
		BaseAddr: fileBase + relocOffset,
		EndAddr:  fileEnd + relocOffset,
	}

	if syms, err := f.DynamicSymbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" {
				addr := sym.Value + relocOffset
				info.Symbols[sym.Name] = addr
				info.Symbols[stripVersion(sym.Name)] = addr
			}
		}
	}
	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" {
				info.Symbols[sym.Name] = sym.Value + relocOffset
			}
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		vaddr := prog.Vaddr + relocOffset
		info.Segments = append(info.Segments, Segment{
			VAddr: vaddr,
			Size:  prog.Filesz,
			MemSz: prog.Memsz,
			Flags: prog.Flags,
		})

		start := vaddr &^ (pageSize - 1)
		end := (vaddr + prog.Memsz + pageSize - 1) &^ (pageSize - 1)
		// neighbouring segments may share a page
		_ = e.MapRegion(start, end-start)

		if prog.Filesz > 0 && prog.Off+prog.Filesz <= uint64(len(fileData)) {
			if err := e.MemWrite(vaddr, fileData[prog.Off:prog.Off+prog.Filesz]); err != nil {
				return nil, fmt.Errorf("write segment at 0x%x: %w", vaddr, err)
			}
		}
		if prog.Memsz > prog.Filesz {
			_ = e.MemWrite(vaddr+prog.Filesz, make([]byte, prog.Memsz-prog.Filesz))
		}
	}

	// PLT addresses are needed before relocations so ABS64 imports resolve to them
	addPLTSymbols(f, relocOffset, info.Symbols, info.Imports)

	if err := e.applyRelocations(f, relocOffset, info.Imports); err != nil {
		return nil, fmt.Errorf("apply relocations: %w", err)
	}

	return info, nil
}

func loadSpan(f *elf.File) (base, end uint64, ok bool) {
	base = ^uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		ok = true
		if prog.Vaddr < base {
			base = prog.Vaddr
		}
		if segEnd := prog.Vaddr + prog.Memsz; segEnd > end {
			end = segEnd
		}
	}
	return base, end, ok
}

// stripVersion drops a "@VERSION" or "@@VERSION" suffix.
func stripVersion(name string) string {
	if idx := strings.Index(name, "@"); idx != -1 {
		return name[:idx]
	}
	return name
}

// addPLTSymbols records the PLT entry of every external function so shims can
// hook calls to it. Addresses go to both symbols and imports.
func addPLTSymbols(f *elf.File, relocOffset uint64, symbols, imports map[string]uint64) {
	pltSec := f.Section(".plt")
	relaPlt := f.Section(".rela.plt")
	if pltSec == nil || relaPlt == nil {
		return
	}

	// Go's DynamicSymbols skips STN_UNDEF, so ELF index i is dynSyms[i-1]
	dynSyms, err := f.DynamicSymbols()
	if err != nil {
		return
	}
	relaData, err := relaPlt.Data()
	if err != nil {
		return
	}

	pltBase := pltSec.Addr + relocOffset
	for entry, i := 0, 0; i+relaEntrySize <= len(relaData); entry, i = entry+1, i+relaEntrySize {
		symIdx := int(binary.LittleEndian.Uint64(relaData[i+8:])>>32) - 1
		if symIdx < 0 || symIdx >= len(dynSyms) {
			continue
		}
		sym := dynSyms[symIdx]
		if sym.Name == "" || sym.Value != 0 {
			continue
		}

		pltAddr := pltBase + pltHeaderSize + uint64(entry)*pltEntrySize
		for _, name := range []string{sym.Name, stripVersion(sym.Name)} {
			symbols[name] = pltAddr
			imports[name] = pltAddr
		}
	}
}

// applyRelocations fixes GOT and data pointers in .rela.dyn and .rela.plt.
// External ABS64 references resolve to the PLT entry from imports.
func (e *Emulator) applyRelocations(f *elf.File, relocOffset uint64, imports map[string]uint64) error {
	dynSyms, _ := f.DynamicSymbols()
	symbol := func(idx int) (elf.Symbol, bool) {
		if idx < 1 || idx > len(dynSyms) {
			return elf.Symbol{}, false
		}
		return dynSyms[idx-1], true
	}

	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA || (sec.Name != ".rela.dyn" && sec.Name != ".rela.plt") {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}

		for i := 0; i+relaEntrySize <= len(data); i += relaEntrySize {
			rOffset := binary.LittleEndian.Uint64(data[i:])
			rInfo := binary.LittleEndian.Uint64(data[i+8:])
			rAddend := binary.LittleEndian.Uint64(data[i+16:])

			target := rOffset + relocOffset
			sym, hasSym := symbol(int(rInfo >> 32))

			switch uint32(rInfo) {
			case R_AARCH64_RELATIVE:
				_ = e.MemWriteU64(target, relocOffset+rAddend)

			case R_AARCH64_GLOB_DAT, R_AARCH64_JUMP_SLOT:
				if hasSym && sym.Value != 0 {
					_ = e.MemWriteU64(target, sym.Value+relocOffset)
				}

			case R_AARCH64_ABS64:
				switch {
				case hasSym && sym.Value != 0:
					_ = e.MemWriteU64(target, sym.Value+relocOffset+rAddend)
				case hasSym && sym.Name != "":
					if stub, ok := imports[stripVersion(sym.Name)]; ok {
						_ = e.MemWriteU64(target, stub+rAddend)
					}
				case !hasSym && int64(rAddend) > 0:
					_ = e.MemWriteU64(target, relocOffset+rAddend)
				}
			}
		}
	}

	return nil
}

// FindSymbol looks up a symbol by name, returns 0 if not found
func (info *ELFInfo) FindSymbol(name string) uint64 {
	return info.Symbols[name]
}

// FindEntryPoint picks where emulation starts:
// the preferred symbol (exact, case-insensitive, then substring), then main,
// then the ELF entry point.
func (info *ELFInfo) FindEntryPoint(preferredEntry string) uint64 {
	if preferredEntry != "" {
		if addr := info.FindSymbol(preferredEntry); addr != 0 {
			return addr
		}
		for name, addr := range info.Symbols {
			if strings.EqualFold(name, preferredEntry) {
				return addr
			}
		}
		lower := strings.ToLower(preferredEntry)
		for name, addr := range info.Symbols {
			if strings.Contains(strings.ToLower(name), lower) {
				return addr
			}
		}
	}

	if addr := info.FindSymbol("main"); addr != 0 {
		return addr
	}

	return info.Entry
}

// SymbolAt returns the shortest symbol name at addr, or "".
func (info *ELFInfo) SymbolAt(addr uint64) string {
	best := ""
	for name, a := range info.Symbols {
		if a == addr && (best == "" || len(name) < len(best)) {
			best = name
		}
	}
	return best
}

// ImportedFrom returns the sorted subset of names the binary imports.
func (info *ELFInfo) ImportedFrom(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := info.Imports[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// IsExecutable returns true if the segment is executable
func (s *Segment) IsExecutable() bool {
	return s.Flags&elf.PF_X != 0
}

// IsWritable returns true if the segment is writable
func (s *Segment) IsWritable() bool {
	return s.Flags&elf.PF_W != 0
}
