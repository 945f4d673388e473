// Command purge finds reclaimable files (temp files, logs, browser data)
// and removes them behind a safety guard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version info, set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitSetup   = 2 // bad config, unsupported platform
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupError(err error) error {
	return &exitError{code: exitSetup, err: err}
}

// streams are the process's standard streams, swapped out in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
}

func execute(ctx context.Context, args []string, std streams) int {
	root := newRootCmd(std)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(std.err, "error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func newRootCmd(std streams) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "purge",
		Short: "Find and remove reclaimable files",
		Long: `purge scans temp directories, log directories and browser profiles for
files that can be safely reclaimed, reports them grouped by category and
safety level, and removes the ones you select.

Removal never touches protected paths and skips files held open by a
running process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(std.in)
	root.SetOut(std.out)
	root.SetErr(std.err)

	opts.bindPersistent(root.PersistentFlags())

	root.AddCommand(
		newScanCmd(opts),
		newCleanCmd(opts),
		newScannersCmd(opts),
		newServeCmd(opts),
		newAuditCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "purge %s (%s) built %s\n", version, commit, date)
		},
	}
}
