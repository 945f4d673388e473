package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/report"
)

func newScanCmd(opts *options) *cobra.Command {
	var (
		scannerNames []string
		outputPath   string
		listItems    bool
	)

	cmd := &cobra.Command{
		Use:   "scan [scanner...]",
		Short: "Scan for reclaimable files",
		Long: `Run the enabled scanners (or only the named ones) and report what could
be reclaimed. Nothing is removed. Interrupting a scan prints the partial
result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			rep, err := a.scan(cmd.Context(), append(scannerNames, args...))
			if err != nil {
				return err
			}

			if outputPath != "" {
				written, err := report.Save(outputPath, rep)
				if err != nil {
					return err
				}
				a.log.Info("scan report saved", logger.F("path", written), logger.F("scan_id", rep.ID))
				fmt.Fprintf(cmd.ErrOrStderr(), "Report saved to %s\n", written)
			}

			if opts.json {
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				newPrinter(cmd.OutOrStdout()).scanReport(rep, listItems)
			}

			if rep.Canceled {
				return errors.New("scan canceled")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&scannerNames, "scanner", "s", nil, "run only these scanners")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "save the report as JSON to this file or directory")
	cmd.Flags().BoolVarP(&listItems, "list", "l", false, "list every item, not just category totals")
	return cmd
}

// scan runs a system scan that SIGINT/SIGTERM cancel. Unknown scanner
// names are rejected before anything runs.
func (a *app) scan(ctx context.Context, names []string) (core.ScanReport, error) {
	if err := a.checkNames(names); err != nil {
		return core.ScanReport{}, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.orch.ScanSystem(ctx, names), nil
}

func (a *app) checkNames(names []string) error {
	known := a.orch.Names()
	for _, n := range names {
		if !slices.Contains(known, n) {
			return fmt.Errorf("unknown scanner %q (available: %s)", n, strings.Join(known, ", "))
		}
	}
	return nil
}
