// internal/commands/run.go
package detrun

import (
	"fmt"
	"time"

	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/metrics"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/mwiater/detrun/internal/tui"
	"github.com/spf13/cobra"
)

var (
	runOpts     runFlags
	runDryRun   bool
	runTUI      bool
	runStrict   bool
	runNoRunLog bool
)

// runCmd implements 'run', which assembles a run configuration and starts
// the training program with it.
var runCmd = &cobra.Command{
	Use:   "run [preset]",
	Short: "Start a training, evaluation or visualization run",
	Long: `The 'run' command merges a preset, the 'run' block of the config file and the
flags given here (flags win), reports check findings, and starts the training program
with the assembled arguments. The program's output is streamed to the terminal and
copied to <output_dir>/launch.log. Findings never stop the run unless --strict is
given. If the program fails, detrun exits with its exit code.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		name, rc, err := runOpts.resolve(cmd, args, cfg)
		if err != nil {
			return err
		}

		findings := runconfig.Check(rc)
		printFindings(cmd.ErrOrStderr(), findings)
		if err := strictGate(findings, runStrict); err != nil {
			return err
		}

		opts, err := launcher.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		opts.NoRunLog = runNoRunLog
		opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
		l := launcher.New(opts)

		if runDryRun {
			return printCommand(cmd, cfg.JSONMode, name, l.Argv(rc))
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		logging.LogPayload("run config", rc)
		var res launcher.Result
		if runTUI {
			// keep log lines off the alternate screen
			_ = logging.Init(cfg.LogFilePath(), nil)
			res, err = tui.Run(ctx, l, name, rc)
		} else {
			res, err = l.Run(ctx, name, rc)
		}
		recordMetrics(cfg, rc, res, err)

		if cfg.JSONMode {
			if jerr := writeJSON(cmd.OutOrStdout(), res); jerr != nil {
				return jerr
			}
		} else {
			printResult(cmd, res, err)
		}
		return err
	},
}

func printCommand(cmd *cobra.Command, jsonMode bool, name string, argv []string) error {
	if jsonMode {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"name": name, "argv": argv})
	}
	fmt.Fprintln(cmd.OutOrStdout(), runconfig.QuoteArgs(argv))
	return nil
}

// recordMetrics folds a finished run into the run statistics file when
// metrics are enabled. Failing to save is logged, never fatal.
func recordMetrics(cfg appconfig.Config, rc runconfig.RunConfig, res launcher.Result, runErr error) {
	if !cfg.Metrics {
		return
	}
	if err := metrics.NewAggregator(cfg.MetricsFilePath()).Record(rc, res, runErr); err != nil {
		logging.LogEvent("[METRICS] could not save run statistics: %v", err)
	}
}

func printResult(cmd *cobra.Command, res launcher.Result, err error) {
	out := cmd.ErrOrStderr()
	elapsed := res.Duration.Round(time.Second)
	if err != nil {
		fmt.Fprintln(out, errColor.Sprintf("run %s failed after %s: %v", res.Name, elapsed, err))
	} else {
		fmt.Fprintln(out, okColor.Sprintf("run %s finished in %s", res.Name, elapsed))
	}
	if res.RunLog != "" {
		fmt.Fprintf(out, "output copied to %s\n", res.RunLog)
	}
}

func init() {
	runOpts.register(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the command instead of running it")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "follow the run in an interactive monitor")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "refuse to start when check reports any finding")
	runCmd.Flags().BoolVar(&runNoRunLog, "no-run-log", false, "do not copy output to <output_dir>/launch.log")
	rootCmd.AddCommand(runCmd)
}
