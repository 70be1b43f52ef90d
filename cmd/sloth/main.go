package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zboralski/sloth/internal/config"
	glog "github.com/zboralski/sloth/internal/log"
	"github.com/zboralski/sloth/internal/stubs"
	"github.com/zboralski/sloth/internal/ui/colorize"
)

var (
	configDir string
	quiet     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sloth",
		Short: "Run compiled sloth programs against an emulated handle heap",
		Long: `Sloth runs ARM64 binaries produced by the sloth compiler under emulation.

The runtime shims the programs link against (memalloc, drefi, assignrefi,
print, puts, exit) are provided in Go. Heap cells live in a fixed-capacity
table addressed by integer handles; every successful operation prints a
diagnostic line such as "MEMALLOC: heap[0] = 4" to stdout.

Examples:
  sloth run fib.elf                # Run with instruction trace
  sloth run fib.elf -q --dump      # Program output and final heap only
  sloth replay heap.yaml           # Replay heap operations without native code
  sloth config                     # Show the effective configuration`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configDir, "config-dir", "", "directory holding sloth.yaml (default $XDG_CONFIG_HOME/sloth)")
	pf.Int("capacity", config.DefaultCapacity, "heap capacity in cells")
	pf.BoolP("debug", "v", false, "verbose debug output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "quiet mode (program output and summary only)")
	pf.Bool("no-trace", false, "do not print heap diagnostics")
	pf.Bool("no-color", false, "disable colors")
	pf.IntP("num", "n", config.DefaultMaxInsn, "max instructions to show")
	pf.String("entry", config.DefaultEntry, "preferred entry symbol")

	rootCmd.AddCommand(newRunCmd(), newInfoCmd(), newReplayCmd(), newConfigCmd())
	return rootCmd
}

// loadConfig resolves configuration and applies the process-wide settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configDir, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.MaxInsn = 0
	}

	glog.Init(cfg.Debug)
	stubs.Debug = cfg.Debug
	colorize.SetEnabled(cfg.Color)
	return cfg, nil
}
