package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"jobmate/jobsync/internal/pipeline"
	"jobmate/jobsync/internal/scraper"
)

var (
	syncPipelines []string
	syncFull      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run scrape → load pipelines",
	Long: `Run the configured pipelines one after another. A failing pipeline is
recorded as FAILED and the next one still runs; the command exits non-zero if
any pipeline failed.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringSliceVarP(&syncPipelines, "pipeline", "p", nil, "pipeline to run (repeatable; default all)")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "ignore stored watermarks")
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	specs, err := a.catalog.Select(syncPipelines)
	if err != nil {
		return errors.WithHint(err, "run `jobsync pipelines` to list names")
	}
	rep := a.runner().Run(cmd.Context(), specs, pipeline.Options{FullSync: syncFull})
	printReport(cmd.OutOrStdout(), rep)
	return reportError(rep)
}

// syncTask adapts a pipeline run to a scheduler task.
func syncTask(r *pipeline.Runner, specs []scraper.PipelineSpec, full bool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return reportError(r.Run(ctx, specs, pipeline.Options{FullSync: full}))
	}
}

func reportError(rep pipeline.Report) error {
	if !rep.Failed() {
		return nil
	}
	var failed []string
	for _, o := range rep.Outcomes {
		if o.Status == pipeline.OutcomeFailed {
			failed = append(failed, o.Pipeline)
		}
	}
	return errors.Newf("%d pipeline(s) failed: %v", len(failed), failed)
}

func printReport(w io.Writer, rep pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tMODE\tSTATUS\tPROCESSED\tINSERTED\tUPDATED\tSKIPPED\tFILTERED\tCURSOR\tDURATION")
	for _, o := range rep.Outcomes {
		cursor := "-"
		if o.Cursor != nil {
			cursor = *o.Cursor
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			o.Pipeline, o.Mode, o.Status, o.Processed, o.Result.Inserted, o.Result.Updated,
			o.Result.Skipped, o.Filtered, cursor, o.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	for _, o := range rep.Outcomes {
		if o.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", o.Pipeline, o.Error)
		}
	}
}
