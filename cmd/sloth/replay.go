package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zboralski/sloth/internal/heap"
	glog "github.com/zboralski/sloth/internal/log"
	"github.com/zboralski/sloth/internal/script"
	"github.com/zboralski/sloth/internal/ui/colorize"
)

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a heap script and check its expectations",
		Args:  cobra.ExactArgs(1),
		RunE:  replayScript,
	}
}

func replayScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := script.Load(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var diag io.Writer = io.Discard
	if cfg.Trace {
		diag = w
	}
	h := heap.New(s.HeapCapacity(cfg.Capacity),
		heap.WithOutput(diag),
		heap.WithLogger(glog.Get().WithCategory("heap")),
	)

	rep, err := script.Run(h, s)
	if err != nil {
		return err
	}

	if !quiet {
		for _, r := range rep.Results {
			if r.Err != nil {
				fmt.Fprintf(w, "  %s %s\n", colorize.Detail(r.Step.String()), colorize.Error(heap.KindOf(r.Err)))
			}
		}
	}
	for _, f := range rep.Failures {
		fmt.Fprintln(w, colorize.Error("FAIL "+f.String()))
	}

	fmt.Fprintf(w, "%d steps  %d failures  %d/%d cells\n",
		len(rep.Results), len(rep.Failures), h.Len(), h.Cap())

	if !rep.OK() {
		return fmt.Errorf("%d of %d steps failed", len(rep.Failures), len(rep.Results))
	}
	return nil
}
