// internal/commands/analyze.go
package detrun

import (
	"bytes"
	"fmt"

	"github.com/mwiater/detrun/internal/report"
	"github.com/mwiater/detrun/internal/trainlog"
	"github.com/mwiater/detrun/internal/util"
	"github.com/spf13/cobra"
)

var (
	analyzeFields   []string
	analyzeCOM      float64
	analyzeLogName  string
	analyzeMarkdown string
)

// analyzeCmd represents the 'analyze' command group.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Group commands for analyzing finished runs",
	Long:  `The 'analyze' command groups subcommands that read what a training run left in its output directory.`,
}

// analyzeLogCmd implements 'analyze log', which summarizes the per-epoch log
// of one or more run directories.
var analyzeLogCmd = &cobra.Command{
	Use:   "log <output_dir>...",
	Short: "Summarize the training log of one or more runs",
	Long: `The 'log' subcommand reads <output_dir>/log.txt (one JSON object per epoch) for every
directory given, smooths each field with an exponentially weighted mean, and reports
the last and best value per field and split. mAP is read from the COCO bbox stats.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries := make([]trainlog.RunSummary, 0, len(args))
		for _, dir := range args {
			l, err := trainlog.Read(dir, analyzeLogName)
			if err != nil {
				return err
			}
			summaries = append(summaries, trainlog.Summarize(l, analyzeFields, analyzeCOM))
		}

		if analyzeMarkdown != "" {
			var buf bytes.Buffer
			if err := report.WriteMarkdown(&buf, report.FromSummaries(summaries)...); err != nil {
				return err
			}
			if err := util.WriteFile(analyzeMarkdown, buf.Bytes()); err != nil {
				return fmt.Errorf("write markdown report: %w", err)
			}
		}

		if config().JSONMode {
			return writeJSON(cmd.OutOrStdout(), summaries)
		}
		trainlog.RenderSummaries(cmd.OutOrStdout(), summaries)
		return nil
	},
}

func init() {
	analyzeLogCmd.Flags().StringSliceVar(&analyzeFields, "fields", nil, "fields to summarize (default class_error,loss_bbox_unscaled,mAP)")
	analyzeLogCmd.Flags().Float64Var(&analyzeCOM, "ewm-com", 0, "center of mass for exponential smoothing; 0 disables smoothing")
	analyzeLogCmd.Flags().StringVar(&analyzeLogName, "log-name", trainlog.DefaultLogName, "log file name inside each directory")
	analyzeLogCmd.Flags().StringVar(&analyzeMarkdown, "markdown", "", "also write the summary as markdown to this path")

	analyzeCmd.AddCommand(analyzeLogCmd)
	rootCmd.AddCommand(analyzeCmd)
}
