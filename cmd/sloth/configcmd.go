package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if cfg.File != "" {
				fmt.Fprintf(w, "# %s\n", cfg.File)
			}
			fmt.Fprint(w, out)
			return nil
		},
	}
}
