// jobsync ingests job postings from ATS boards, career sites and aggregator
// APIs into Postgres, and mails each user a digest of matching jobs.
//
//	jobsync sync [--pipeline NAME ...] [--full]   run scrape → load pipelines
//	jobsync notify [--dry-run]                    run the digest once
//	jobsync serve                                 cron schedule plus ops endpoints
//	jobsync pipelines                             list configured pipelines
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobsync",
	Short: "Job ingestion pipelines and the daily digest mailer",
	Long: `jobsync scrapes job boards into the jobs table and emails users the
jobs that match their preferences.

Examples:
  jobsync sync                         # every pipeline, incremental where configured
  jobsync sync --pipeline ats --full   # one pipeline, ignoring its watermark
  jobsync notify --dry-run             # render digests without sending
  jobsync serve                        # cron daemon with /health and gRPC health`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(syncCmd, notifyCmd, serveCmd, pipelinesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobsync: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
