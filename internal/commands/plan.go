// internal/commands/plan.go
package detrun

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/metrics"
	"github.com/mwiater/detrun/internal/plan"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

var (
	planVars     []string
	planParallel int
	planDryRun   bool
	planStrict   bool
)

// planCmd groups the commands that work on plan files: HCL documents with one
// 'run' block per run and depends_on edges between them.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Group commands for multi-run plan files",
	Long: `A plan file describes several runs (for example train, then eval, then visualize)
in HCL. Each 'run' block may name a preset, set any run option and list the runs it
depends_on. Values can reference var.<name> from the file's 'variables' map, and
--var key=value overrides those.`,
}

// planRunCmd implements 'plan run'.
var planRunCmd = &cobra.Command{
	Use:   "run <plan.hcl>",
	Short: "Run every step of a plan in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		steps, err := loadSteps(args[0], cfg.ResolveRun)
		if err != nil {
			return err
		}

		for _, s := range steps {
			findings := runconfig.Check(s.Config)
			for _, f := range findings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", s.Name)
				printFindings(cmd.ErrOrStderr(), runconfig.Findings{f})
			}
			if err := strictGate(findings, planStrict); err != nil {
				return fmt.Errorf("run %q: %w", s.Name, err)
			}
		}

		opts, err := launcher.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
		l := launcher.New(opts)

		if planDryRun {
			if cfg.JSONMode {
				out := make([]map[string]any, 0, len(steps))
				for _, s := range steps {
					out = append(out, map[string]any{"name": s.Name, "dependsOn": s.DependsOn, "argv": l.Argv(s.Config)})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			for _, s := range steps {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", s.Name, runconfig.QuoteArgs(l.Argv(s.Config)))
			}
			return nil
		}

		ctx, stop := signalContext(cmd)
		defer stop()

		var runner plan.Runner = l
		if cfg.Metrics {
			runner = recordingRunner{runner: l, agg: metrics.NewAggregator(cfg.MetricsFilePath())}
		}
		outcomes, runErr := plan.Execute(ctx, steps, runner, planParallel)
		if cfg.JSONMode {
			if err := writeJSON(cmd.OutOrStdout(), outcomes); err != nil {
				return err
			}
		} else {
			printOutcomes(cmd.ErrOrStderr(), outcomes)
		}
		return runErr
	},
}

// planShowCmd implements 'plan show'.
var planShowCmd = &cobra.Command{
	Use:   "show <plan.hcl>",
	Short: "Print the resolved runs of a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		steps, err := loadSteps(args[0], cfg.ResolveRun)
		if err != nil {
			return err
		}
		if cfg.JSONMode {
			out := make([]map[string]any, 0, len(steps))
			for _, s := range steps {
				out = append(out, map[string]any{"name": s.Name, "dependsOn": s.DependsOn, "config": s.Config, "args": s.Config.Args()})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		}
		out := cmd.OutOrStdout()
		for i, s := range steps {
			deps := "-"
			if len(s.DependsOn) > 0 {
				deps = strings.Join(s.DependsOn, ", ")
			}
			fmt.Fprintf(out, "%d. %s (after: %s)\n   %s\n", i+1, s.Name, deps, s.Config.String())
		}
		return nil
	},
}

// planGraphCmd implements 'plan graph'.
var planGraphCmd = &cobra.Command{
	Use:   "graph <plan.hcl>",
	Short: "Write the plan's dependency graph in DOT format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan(args[0])
		if err != nil {
			return err
		}
		return p.WriteDOT(cmd.OutOrStdout())
	},
}

// recordingRunner records every finished step in the run statistics.
type recordingRunner struct {
	runner plan.Runner
	agg    *metrics.Aggregator
}

func (r recordingRunner) Run(ctx context.Context, name string, rc runconfig.RunConfig) (launcher.Result, error) {
	res, err := r.runner.Run(ctx, name, rc)
	if serr := r.agg.Record(rc, res, err); serr != nil {
		logging.LogEvent("[METRICS] could not save run statistics: %v", serr)
	}
	return res, err
}

func loadPlan(path string) (*plan.Plan, error) {
	vars, err := plan.ParseVars(planVars)
	if err != nil {
		return nil, err
	}
	return plan.Load(path, vars)
}

func loadSteps(path string, resolve plan.Resolver) ([]plan.Step, error) {
	p, err := loadPlan(path)
	if err != nil {
		return nil, err
	}
	return p.Steps(resolve)
}

func printOutcomes(out io.Writer, outcomes []plan.Outcome) {
	for _, o := range outcomes {
		elapsed := o.Duration.Round(time.Second)
		switch o.Status {
		case plan.StatusSucceeded:
			fmt.Fprintln(out, okColor.Sprintf("  %-16s succeeded in %s", o.Name, elapsed))
		case plan.StatusFailed:
			fmt.Fprintln(out, errColor.Sprintf("  %-16s failed after %s (exit %d)", o.Name, elapsed, o.ExitCode))
		default:
			fmt.Fprintln(out, warnColor.Sprintf("  %-16s skipped", o.Name))
		}
	}
}

func init() {
	planCmd.PersistentFlags().StringArrayVar(&planVars, "var", nil, "override a plan variable as key=value (repeatable)")
	planRunCmd.Flags().IntVar(&planParallel, "parallel", 1, "maximum number of runs in flight")
	planRunCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "print each command instead of running it")
	planRunCmd.Flags().BoolVar(&planStrict, "strict", false, "refuse to start when check reports any finding")

	planCmd.AddCommand(planRunCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planGraphCmd)
	rootCmd.AddCommand(planCmd)
}
