// internal/commands/check.go
package detrun

import (
	"fmt"

	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

var (
	checkOpts   runFlags
	checkStrict bool
)

// checkCmd implements 'check', which validates a run configuration without
// starting anything.
var checkCmd = &cobra.Command{
	Use:   "check [preset]",
	Short: "Validate a run configuration",
	Long: `The 'check' command resolves a run configuration the same way 'run' does and
validates it against the option schema, the backbone catalog (layer indices must
exist in the backbone) and the dataset registry (the domains must provide the
splits the mode needs).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		name, rc, err := checkOpts.resolve(cmd, args, cfg)
		if err != nil {
			return err
		}
		findings := runconfig.Check(rc)

		if cfg.JSONMode {
			if findings == nil {
				findings = runconfig.Findings{}
			}
			if err := writeJSON(cmd.OutOrStdout(), map[string]any{"name": name, "findings": findings}); err != nil {
				return err
			}
			return gate(findings, checkStrict)
		}

		out := cmd.OutOrStdout()
		printFindings(out, findings)
		if err := gate(findings, checkStrict); err != nil {
			return err
		}
		if len(findings) == 0 {
			fmt.Fprintln(out, okColor.Sprintf("%s: ok", name))
		} else {
			fmt.Fprintln(out, warnColor.Sprintf("%s: ok with %d warning(s)", name, len(findings)))
		}
		return nil
	},
}

func init() {
	checkOpts.register(checkCmd)
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "treat warnings as errors")
	rootCmd.AddCommand(checkCmd)
}
