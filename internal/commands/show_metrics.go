// internal/commands/show_metrics.go
package detrun

import (
	"fmt"
	"time"

	"github.com/mwiater/detrun/internal/metrics"
	"github.com/mwiater/detrun/internal/report"
	"github.com/spf13/cobra"
)

// showMetricsCmd implements 'show metrics', which prints the statistics
// collected for every run name while metrics are enabled.
var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show collected run statistics",
	Long:  `The 'metrics' subcommand prints how often each run name was launched, how those runs ended and how long they took. Statistics are collected when 'metrics: true' is set in the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		snapshot := metrics.NewAggregator(cfg.MetricsFilePath()).Snapshot()
		if cfg.JSONMode {
			return writeJSON(cmd.OutOrStdout(), snapshot)
		}

		table := report.Table{
			Title:   "Run statistics",
			Headers: []string{"Run", "Runs", "OK", "Failed", "Cancelled", "Mean", "Max", "Last exit"},
			Signed:  -1,
			Notes:   []string{fmt.Sprintf("file: %s", cfg.MetricsFilePath())},
		}
		if !cfg.Metrics {
			table.Notes = append(table.Notes, "collection is disabled; set metrics: true to record runs")
		}
		for _, m := range snapshot {
			s := m.OverallStats
			table.Rows = append(table.Rows, []string{
				m.RunName,
				fmt.Sprint(s.TotalRuns),
				fmt.Sprint(s.Succeeded),
				fmt.Sprint(s.Failed),
				fmt.Sprint(s.Cancelled),
				seconds(s.DurationSeconds.Mean),
				seconds(s.DurationSeconds.Max),
				fmt.Sprint(m.LastExitCode),
			})
		}
		report.WriteText(cmd.OutOrStdout(), table)
		return nil
	},
}

func seconds(v float64) string {
	return (time.Duration(v * float64(time.Second))).Round(time.Second).String()
}

func init() {
	showCmd.AddCommand(showMetricsCmd)
}
