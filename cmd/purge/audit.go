package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ChrisB0-2/purge/internal/auditor"
)

func newAuditCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the SQLite audit database",
		Long: `Read the audit database configured by audit.db_path, or audit.path when
audit.backend is sqlite. The JSONL backend is plain text and needs no
tooling.`,
	}
	cmd.AddCommand(
		newAuditStatsCmd(opts),
		newAuditQueryCmd(opts),
		newAuditVerifyCmd(opts),
		newAuditExportCmd(opts),
		newAuditPruneCmd(opts),
	)
	return cmd
}

// openAuditDB opens an existing audit database. It never creates one.
func openAuditDB(opts *options) (*auditor.SQLiteAuditor, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Audit.SQLitePath()
	if path == "" {
		return nil, setupError(errors.New("no SQLite audit database configured (set audit.db_path or audit.backend: sqlite)"))
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("audit database %s does not exist yet", path)
		}
		return nil, err
	}
	return auditor.NewSQLite(auditor.SQLiteConfig{Path: path})
}

func newAuditStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openAuditDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit stats: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, stats)
			}

			fmt.Fprintf(out, "Records:        %s\n", humanize.Comma(stats.TotalRecords))
			if stats.TotalRecords > 0 {
				fmt.Fprintf(out, "First record:   %s (%s)\n", stats.FirstRecord.Local().Format(time.DateTime), humanize.Time(stats.FirstRecord))
				fmt.Fprintf(out, "Last record:    %s (%s)\n", stats.LastRecord.Local().Format(time.DateTime), humanize.Time(stats.LastRecord))
			}
			fmt.Fprintf(out, "Scans:          %s\n", humanize.Comma(stats.Scans))
			fmt.Fprintf(out, "Cleanups:       %s\n", humanize.Comma(stats.Cleanups))
			fmt.Fprintf(out, "Items removed:  %s\n", humanize.Comma(stats.ItemsRemoved))
			fmt.Fprintf(out, "Failed removes: %s\n", humanize.Comma(stats.RemoveFailures))
			fmt.Fprintf(out, "Space freed:    %s\n", bytesStr(stats.TotalBytesFreed))
			return nil
		},
	}
}

func newAuditQueryCmd(opts *options) *cobra.Command {
	var (
		since  time.Duration
		filter auditor.QueryFilter
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openAuditDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := db.Query(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("audit query: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.json {
				if records == nil {
					records = []auditor.AuditRecord{}
				}
				return printJSON(out, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching records.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tACTION\tLEVEL\tSCANNER\tRESULT\tPATH")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, humanize.Time(r.Timestamp), r.Action, r.Level, dash(r.Scanner), recordResult(r), dash(r.Path))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this (e.g. 24h)")
	cmd.Flags().StringVar(&filter.Action, "action", "", "filter by action: scan, cleanup or remove")
	cmd.Flags().StringVar(&filter.Level, "level", "", "filter by level: info or warn")
	cmd.Flags().StringVar(&filter.Scanner, "scanner", "", "filter by scanner name")
	cmd.Flags().StringVar(&filter.Path, "path", "", "filter by path substring")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum records to show (0 = all)")
	return cmd
}

func recordResult(r auditor.AuditRecord) string {
	switch {
	case r.Action != "remove":
		return dash(r.Reason)
	case r.Removed:
		return "removed " + bytesStr(r.BytesFreed)
	default:
		return dash(r.Reason)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newAuditVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every record against its checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openAuditDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			tampered, err := db.VerifyIntegrity(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit verify: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.json {
				if err := printJSON(out, map[string]any{"ok": len(tampered) == 0, "tampered_ids": tampered}); err != nil {
					return err
				}
			} else if len(tampered) == 0 {
				fmt.Fprintln(out, "All records verified.")
			} else {
				fmt.Fprintf(out, "%d records failed verification:\n", len(tampered))
				for _, id := range tampered {
					fmt.Fprintf(out, "  %d\n", id)
				}
			}

			if len(tampered) > 0 {
				return fmt.Errorf("%d audit records were modified", len(tampered))
			}
			return nil
		},
	}
}

func newAuditExportCmd(opts *options) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write audit records as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openAuditDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			data, err := db.Export(cmd.Context(), from)
			if err != nil {
				return fmt.Errorf("audit export: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
			return err
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this (e.g. 168h)")
	return cmd
}

func newAuditPruneCmd(opts *options) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be a positive duration")
			}
			db, err := openAuditDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Prune(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("audit prune: %w", err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"pruned": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s records.\n", humanize.Comma(n))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age past which records are deleted (e.g. 2160h)")
	return cmd
}
