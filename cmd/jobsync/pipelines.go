package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jobmate/jobsync/internal/scraper"
)

var pipelinesSources string

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List configured pipelines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := scraper.LoadCatalog(pipelinesSources)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tINCREMENTAL\tENDPOINTS\tEXCLUDES")
		for _, p := range c.Pipelines {
			fmt.Fprintf(tw, "%s\t%t\t%d\t%d\n", p.Name, p.Incremental, len(p.Endpoints), len(p.Exclude))
		}
		return tw.Flush()
	},
}

func init() {
	pipelinesCmd.Flags().StringVar(&pipelinesSources, "sources", os.Getenv("SOURCES_FILE"), "YAML catalog (default: built-in)")
}
