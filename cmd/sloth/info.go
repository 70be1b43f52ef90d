package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/stubs"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <program.elf>",
		Short: "Show binary information and runtime imports",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
}

func showInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("file not found: %s", absPath)
	}

	emu, err := emulator.New()
	if err != nil {
		return fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()

	elfInfo, err := emu.LoadELF(absPath)
	if err != nil {
		return fmt.Errorf("load binary: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Binary:  %s\n", filepath.Base(absPath))
	fmt.Fprintf(w, "Base:    0x%x\n", elfInfo.BaseAddr)
	fmt.Fprintf(w, "End:     0x%x\n", elfInfo.EndAddr)
	fmt.Fprintf(w, "Entry:   0x%x\n", elfInfo.Entry)
	fmt.Fprintf(w, "Symbols: %d\n", len(elfInfo.Symbols))

	if entry := elfInfo.FindEntryPoint(cfg.Entry); entry != 0 {
		fmt.Fprintf(w, "Run from: 0x%x %s\n", entry, elfInfo.SymbolAt(entry))
	}

	known := stubs.DefaultRegistry.List()
	shimmed := elfInfo.ImportedFrom(known)
	fmt.Fprintf(w, "\nRuntime shims (%d):\n", len(shimmed))
	for _, name := range shimmed {
		def, _ := stubs.DefaultRegistry.Lookup(name)
		fmt.Fprintf(w, "  0x%x %-12s %s\n", elfInfo.Imports[name], name, def.Category)
	}

	var unknown []string
	for name := range elfInfo.Imports {
		if _, ok := stubs.DefaultRegistry.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	if len(unknown) > 0 {
		fmt.Fprintf(w, "\nUnhandled imports, return 0 (%d):\n", len(unknown))
		for _, name := range unknown {
			fmt.Fprintf(w, "  0x%x %s\n", elfInfo.Imports[name], name)
		}
	}
	return nil
}
