// internal/commands/show_args.go
package detrun

import (
	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

var (
	showArgsOpts runFlags
	showArgsOnly bool
)

// showArgsCmd implements 'show args', which prints the command line 'run'
// would start without running it. Check findings go to stderr.
var showArgsCmd = &cobra.Command{
	Use:   "args [preset]",
	Short: "Print the assembled command line",
	Long: `The 'args' subcommand resolves a run configuration exactly like 'run' and prints the
resulting command line, quoted for a POSIX shell. With --only, just the training
program's arguments are printed. Check findings are reported on stderr but never
change what is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		name, rc, err := showArgsOpts.resolve(cmd, args, cfg)
		if err != nil {
			return err
		}
		printFindings(cmd.ErrOrStderr(), runconfig.Check(rc))
		if showArgsOnly {
			return printCommand(cmd, cfg.JSONMode, name, rc.Args())
		}
		opts, err := launcher.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		return printCommand(cmd, cfg.JSONMode, name, launcher.New(opts).Argv(rc))
	},
}

func init() {
	showArgsOpts.register(showArgsCmd)
	showArgsCmd.Flags().BoolVar(&showArgsOnly, "only", false, "print only the training program's arguments")
	showCmd.AddCommand(showArgsCmd)
}
