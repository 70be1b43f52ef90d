package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zboralski/sloth/internal/config"
	"github.com/zboralski/sloth/internal/emulator"
	"github.com/zboralski/sloth/internal/heap"
	glog "github.com/zboralski/sloth/internal/log"
	"github.com/zboralski/sloth/internal/stubs"
	_ "github.com/zboralski/sloth/internal/stubs/all"
	"github.com/zboralski/sloth/internal/trace"
	"github.com/zboralski/sloth/internal/ui/colorize"
)

const sentinel = uint64(0xDEADBEEF)

var dumpHeap bool

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program.elf>",
		Short: "Run a compiled sloth program",
		Args:  cobra.ExactArgs(1),
		RunE:  runProgram,
	}
	cmd.Flags().BoolVar(&dumpHeap, "dump", false, "print every heap cell after the run")
	return cmd
}

// runStats counts what happened during one run.
type runStats struct {
	insn    int
	calls   int
	allocs  int
	reads   int
	writes  int
	errors  int
	faulted error
}

func runProgram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	binaryPath := args[0]

	emu, err := emulator.New()
	if err != nil {
		return fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()

	info, err := emu.LoadELF(binaryPath)
	if err != nil {
		return fmt.Errorf("load ELF: %w", err)
	}

	entry := info.FindEntryPoint(cfg.Entry)
	if entry == 0 {
		return fmt.Errorf("no entry point in %s", binaryPath)
	}
	entryName := info.SymbolAt(entry)
	if entryName == "" {
		entryName = "unknown"
	}

	s := newSession(emu, cfg, cmd.OutOrStdout(), info.Imports, info.Symbols)
	defer s.close()

	glog.Get().Debug("session",
		zap.String("id", s.trace.ID.String()),
		zap.String("path", info.Path),
		glog.Addr(info.BaseAddr),
		zap.Int("imports", len(info.Imports)),
		zap.Int("symbols", len(info.Symbols)),
		zap.Int("hooks", s.installed),
		zap.String("entry", entryName),
	)

	if !quiet {
		printHeader(s.out, binaryPath, info, entry, s.installed, entryName, cfg)
	}

	exitCode := s.run(entry)
	s.report(cmd.OutOrStdout(), exitCode, dumpHeap)

	if s.stats.faulted != nil {
		return fmt.Errorf("emulation stopped at 0x%x: %w", emu.PC(), s.stats.faulted)
	}
	return nil
}

// session wires one loaded program to a heap, the shims and the trace output.
type session struct {
	cfg       *config.Config
	emu       *emulator.Emulator
	heap      *heap.Heap
	env       *stubs.Env
	out       *outputWriter
	trace     *trace.Session
	collector *traceCollector
	stats     *runStats
	addrToSym map[uint64]string
	installed int
}

func newSession(emu *emulator.Emulator, cfg *config.Config, w io.Writer, imports, symbols map[string]uint64) *session {
	s := &session{
		cfg:       cfg,
		emu:       emu,
		out:       newOutputWriter(w),
		trace:     trace.NewSession(),
		collector: &traceCollector{},
		stats:     &runStats{},
		addrToSym: make(map[uint64]string, len(symbols)),
	}

	var heapOut io.Writer = io.Discard
	if cfg.Trace {
		heapOut = s.out
	}
	s.heap = heap.New(cfg.Capacity,
		heap.WithOutput(heapOut),
		heap.WithLogger(glog.Get().WithCategory("heap")),
		heap.WithObserver(s.observe),
	)

	s.env = stubs.NewEnv(s.heap)
	s.env.Out = s.out
	s.installed = stubs.Install(emu, s.env, imports, symbols)
	stubs.DefaultRegistry.OnCall = s.onCall

	for name, addr := range symbols {
		if existing, ok := s.addrToSym[addr]; !ok || len(name) < len(existing) {
			s.addrToSym[addr] = name
		}
	}

	emu.HookAddress(sentinel, func(e *emulator.Emulator) bool {
		return true
	})
	emu.HookCode(s.step)
	return s
}

// tracing reports whether the instruction trace is still printing.
// Events are only collected while it is.
func (s *session) tracing() bool {
	return s.cfg.MaxInsn > 0 && s.stats.insn <= s.cfg.MaxInsn
}

func (s *session) observe(r heap.Record) {
	switch r.Op {
	case heap.OpAlloc:
		s.stats.allocs++
	case heap.OpRead:
		s.stats.reads++
	case heap.OpWrite:
		s.stats.writes++
	}
	if s.tracing() {
		e := s.trace.Record(r)
		e.PC = s.emu.LR()
		trace.DefaultEnricher(e)
		s.collector.Add(e)
	}
}

func (s *session) onCall(category, name, detail string) {
	s.stats.calls++
	e := s.trace.Event(s.emu.LR(), category, name, detail)
	trace.DefaultEnricher(e)
	if e.Tags.Has(trace.Error) {
		s.stats.errors++
	} else if category == "stdmem" {
		// successful heap calls are traced from the heap record
		return
	}
	if s.tracing() {
		s.collector.Add(e)
	}
}

func (s *session) step(e *emulator.Emulator, addr uint64, size uint32) {
	s.stats.insn++
	if s.stats.insn > s.cfg.MaxInsn {
		return
	}

	code, _ := e.MemRead(addr, 4)
	dis := disasm(code)
	events := s.collector.GetAndClear()

	s.out.Line(formatLine(addr, code, dis, s.addrToSym[addr], events))
	if isBlockEnd(dis) {
		s.out.Line("")
	}
}

// run executes from entry until the program exits, returns to the sentinel
// or faults, and returns the exit status. The output writer is drained
// before run returns.
func (s *session) run(entry uint64) int {
	s.emu.SetLR(sentinel)
	err := s.emu.RunFrom(entry)
	s.out.Close()

	if s.env.Exited {
		return s.env.ExitCode
	}
	if s.emu.PC() == sentinel {
		// returned from the entry function
		return int(stubs.ArgInt(s.emu, 0))
	}
	if err != nil {
		s.stats.faulted = err
	}
	return s.env.ExitCode
}

func (s *session) report(w io.Writer, exitCode int, dump bool) {
	if dump {
		printHeap(w, s.heap)
	}
	printStats(w, s.stats, s.heap, exitCode)
}

func (s *session) close() {
	stubs.DefaultRegistry.OnCall = nil
}

func printHeader(w *outputWriter, binary string, info *emulator.ELFInfo, entry uint64, hooks int, entryName string, cfg *config.Config) {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, binary); err == nil && !strings.HasPrefix(rel, "..") {
			binary = rel
		}
	}

	w.Line("")
	w.Line(fmt.Sprintf("%s sloth ─ handle heap runtime", colorize.Header("▶")))
	w.Line(fmt.Sprintf("  %s %s", colorize.Detail("Loading:"), binary))
	w.Line(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Base:"), colorize.Address(info.BaseAddr),
		colorize.Detail("Entry:"), colorize.Address(entry)))
	w.Line(fmt.Sprintf("  %s %s  %s %s  %s %s",
		colorize.Detail("Imports:"), colorize.FuncName(fmt.Sprintf("%d", len(info.Imports))),
		colorize.Detail("Hooks:"), colorize.FuncName(fmt.Sprintf("%d", hooks)),
		colorize.Detail("Capacity:"), colorize.FuncName(fmt.Sprintf("%d", cfg.Capacity))))
	w.Line(fmt.Sprintf("  %s %s", colorize.Detail("Entry point:"), colorize.FuncName(entryName)))
	w.Line("")
}

func printHeap(w io.Writer, h *heap.Heap) {
	cells := h.Snapshot()
	fmt.Fprintln(w)
	fmt.Fprintln(w, colorize.Header(fmt.Sprintf("heap %d/%d", len(cells), h.Cap())))
	for _, c := range cells {
		fmt.Fprintf(w, "  %s = %d  %s\n",
			colorize.Handle(int(c.Handle)), c.Value,
			colorize.Detail(fmt.Sprintf("size=%d", c.Size)))
	}
}

func printStats(w io.Writer, s *runStats, h *heap.Heap, exitCode int) {
	fmt.Fprintln(w)
	fmt.Fprint(w, colorize.Border("───────────────────────────────────────── "))
	fmt.Fprintf(w, "%s insn  %s calls  %s cells",
		colorize.FuncName(fmt.Sprintf("%d", s.insn)),
		colorize.FuncName(fmt.Sprintf("%d", s.calls)),
		colorize.FuncName(fmt.Sprintf("%d/%d", h.Len(), h.Cap())))
	if s.errors > 0 {
		fmt.Fprintf(w, "  %s", colorize.Error(fmt.Sprintf("%d rejected", s.errors)))
	}
	if s.faulted != nil {
		fmt.Fprintf(w, "  %s", colorize.Error(s.faulted.Error()))
	} else {
		fmt.Fprintf(w, "  %s %d", colorize.Detail("exit"), exitCode)
	}
	fmt.Fprintln(w)
}
