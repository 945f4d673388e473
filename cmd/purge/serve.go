package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ChrisB0-2/purge/internal/daemon"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/rpc"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		healthAddr string
		pidFile    string
		reportDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer JSON-RPC requests on stdin/stdout",
		Long: `Serve reads one JSON-RPC 2.0 request per line from stdin and writes one
response per line to stdout until stdin closes or the process receives
SIGINT/SIGTERM. Logs never go to stdout in this mode.

Methods: ping, scan, cleanup, get_scanners, get_scan_results, save_scan_report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("health-addr") {
				cfg.Server.HealthAddr = healthAddr
			}
			if cmd.Flags().Changed("pid-file") {
				cfg.Server.PIDFile = ""
				if pidFile != "" {
					if cfg.Server.PIDFile, err = filepath.Abs(pidFile); err != nil {
						return setupError(err)
					}
				}
			}
			if cfg.Logging.Output == "stdout" {
				return setupError(errors.New("serve writes responses to stdout; log to stderr or a file"))
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			srv := rpc.NewServerWithLogger(a.orch, a.log)
			srv.SetReportDir(reportDir)

			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if isTerminal(in) {
				a.log.Warn("stdin is a terminal; expecting one JSON request per line")
			}

			d := daemon.New(a.log, func(ctx context.Context) error {
				return srv.Serve(ctx, in, out)
			}, daemon.Config{
				HealthAddr: cfg.Server.HealthAddr,
				PIDFile:    cfg.Server.PIDFile,
				Status:     srv.Status,
			})

			a.log.Info("serving JSON-RPC on stdio",
				logger.F("methods", srv.Methods()),
				logger.F("health_addr", cfg.Server.HealthAddr))
			if err := d.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "listen address for /health, /ready and /status")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "path of a lock file that keeps a second server from starting")
	cmd.Flags().StringVar(&reportDir, "report-dir", ".", "default directory for save_scan_report")
	return cmd
}
