package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"jobmate/jobsync/internal/notify"
)

var notifyDryRun bool

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send the job digest to every eligible user",
	Long: `Match, render and send one digest per eligible user. Exits non-zero if
the mail preflight fails or any user could not be processed; everyone else
still receives their email.`,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "render digests without sending or logging them")
}

func runNotify(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.dispatcher(notifyDryRun)
	if err != nil {
		return err
	}
	stats, err := d.Run(cmd.Context())
	printStats(cmd.OutOrStdout(), stats)
	if err != nil {
		return err
	}
	return statsError(stats)
}

func notifyTask(d *notify.Dispatcher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := d.Run(ctx)
		if err != nil {
			return err
		}
		return statsError(stats)
	}
}

func statsError(s notify.Stats) error {
	if s.Errors == 0 {
		return nil
	}
	return errors.Newf("digest run %s finished with %d error(s)", s.RunID, s.Errors)
}

func printStats(w io.Writer, s notify.Stats) {
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "digest run %s%s: sent=%d skipped=%d errors=%d users=%d pages=%d in %s\n",
		s.RunID, mode, s.Sent, s.Skipped, s.Errors, s.UsersProcessed, s.Pages, s.Duration.Round(time.Millisecond))
}
