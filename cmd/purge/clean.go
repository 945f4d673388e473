package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/report"
)

func newCleanCmd(opts *options) *cobra.Command {
	var (
		scannerNames []string
		fromPath     string
		maxTier      string
		dryRun       bool
		yes          bool
	)

	cmd := &cobra.Command{
		Use:   "clean [scanner...]",
		Short: "Remove reclaimable files",
		Long: `Scan (or load a saved report with --from) and remove the items whose
safety level is at or below --max-tier. Protected paths and files held
open by a running process are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := core.ParseSafetyTier(maxTier)
			if err != nil {
				return fmt.Errorf("--max-tier: %w", err)
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var rep core.ScanReport
			if fromPath != "" {
				if rep, err = report.Load(fromPath); err != nil {
					return err
				}
			} else if rep, err = a.scan(cmd.Context(), append(scannerNames, args...)); err != nil {
				return err
			} else if rep.Canceled {
				return errors.New("scan canceled, nothing removed")
			}

			items := filterTier(rep.Items, limit)
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				if opts.json {
					return printJSON(out, core.CleanupReport{DryRun: dryRun})
				}
				fmt.Fprintln(out, "Nothing to clean.")
				return nil
			}

			if !dryRun && !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), items)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			res := a.orch.Cleanup(ctx, items, dryRun)

			if opts.json {
				return printJSON(out, res)
			}
			newPrinter(out).cleanupReport(res)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&scannerNames, "scanner", "s", nil, "run only these scanners")
	cmd.Flags().StringVar(&fromPath, "from", "", "clean the items of a report saved with scan --output")
	cmd.Flags().StringVar(&maxTier, "max-tier", string(core.SafetySafe), "highest safety level to remove: safe, warning, dangerous, critical")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would be removed without touching anything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// filterTier keeps items whose safety tier ranks at or below limit.
func filterTier(items []core.Candidate, limit core.SafetyTier) []core.Candidate {
	out := make([]core.Candidate, 0, len(items))
	for _, it := range items {
		if it.Safety.Rank() <= limit.Rank() {
			out = append(out, it)
		}
	}
	return out
}

// confirm asks on a terminal. Without one it refuses, so scripts must pass --yes.
func confirm(in io.Reader, prompt io.Writer, items []core.Candidate) (bool, error) {
	if !isTerminal(in) {
		return false, errors.New("refusing to remove files without --yes when stdin is not a terminal")
	}

	var total int64
	for _, it := range items {
		total += it.Size
	}
	fmt.Fprintf(prompt, "Remove %d items (%s)? [y/N] ", len(items), bytesStr(total))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
