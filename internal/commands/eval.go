// internal/commands/eval.go
package detrun

import (
	"bytes"
	"fmt"

	"github.com/mwiater/detrun/internal/evalmetric"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/report"
	"github.com/mwiater/detrun/internal/util"
	"github.com/spf13/cobra"
)

var (
	evalGT        string
	evalPreds     string
	evalThreshold float64
	evalMarkdown  string
	evalPDF       string
)

// evalCmd represents the 'eval' command group.
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Group commands for offline evaluation of predictions",
}

// evalMetricCmd implements 'eval metric', which compares AP under IoU and IoP
// matching for a COCO ground truth file and a detection results file.
var evalMetricCmd = &cobra.Command{
	Use:   "metric",
	Short: "Compare AP@IoU and AP@IoP per category",
	Long: `The 'metric' subcommand matches detections to ground truth twice, once by
intersection over union and once by intersection over prediction area, and reports
the average precision of each per category together with the difference. IoP is
lenient towards predictions that sit inside a larger ground-truth box, which is
common when label conventions differ between source and target domains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gt, err := evalmetric.LoadGroundTruth(evalGT)
		if err != nil {
			return err
		}
		preds, err := evalmetric.LoadPredictions(evalPreds)
		if err != nil {
			return err
		}
		result, err := evalmetric.Evaluate(gt, preds, evalThreshold)
		if err != nil {
			return err
		}
		logging.LogEvent("[EVAL] %d categories, %d predictions, mean AP@IoU=%.4f AP@IoP=%.4f",
			len(result.Categories), len(preds), result.MeanIoU, result.MeanIoP)

		table := report.FromEvaluation(result)
		if evalMarkdown != "" {
			var buf bytes.Buffer
			if err := report.WriteMarkdown(&buf, table); err != nil {
				return err
			}
			if err := util.WriteFile(evalMarkdown, buf.Bytes()); err != nil {
				return fmt.Errorf("write markdown report: %w", err)
			}
		}
		if evalPDF != "" {
			var buf bytes.Buffer
			if err := report.WritePDF(&buf, table); err != nil {
				return err
			}
			if err := util.WriteFile(evalPDF, buf.Bytes()); err != nil {
				return fmt.Errorf("write pdf report: %w", err)
			}
		}

		if config().JSONMode {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		report.WriteText(cmd.OutOrStdout(), table)
		return nil
	},
}

func init() {
	evalMetricCmd.Flags().StringVar(&evalGT, "gt", "", "COCO ground truth annotations (json)")
	evalMetricCmd.Flags().StringVar(&evalPreds, "preds", "", "COCO detection results (json)")
	evalMetricCmd.Flags().Float64Var(&evalThreshold, "threshold", evalmetric.DefaultThreshold, "overlap a match must exceed")
	evalMetricCmd.Flags().StringVar(&evalMarkdown, "markdown", "", "also write the table as markdown to this path")
	evalMetricCmd.Flags().StringVar(&evalPDF, "pdf", "", "also write the table as a PDF to this path")
	_ = evalMetricCmd.MarkFlagRequired("gt")
	_ = evalMetricCmd.MarkFlagRequired("preds")

	evalCmd.AddCommand(evalMetricCmd)
	rootCmd.AddCommand(evalCmd)
}
