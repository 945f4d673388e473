package main

import (
	"github.com/spf13/cobra"
)

func newScannersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scanners",
		Short: "List the scanners available on this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			infos := a.orch.ScannerInfo()
			if opts.json {
				return printJSON(cmd.OutOrStdout(), infos)
			}
			newPrinter(cmd.OutOrStdout()).scanners(infos)
			return nil
		},
	}
}
