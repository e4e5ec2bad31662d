// internal/commands/list.go
package detrun

import (
	"github.com/spf13/cobra"
)

// listCmd represents the 'list' command group for listing resources.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Group commands for listing resources",
	Long:  `The 'list' command groups subcommands that list presets, backbones, datasets and the command tree.`,
}

func init() {
	rootCmd.AddCommand(listCmd)
}
