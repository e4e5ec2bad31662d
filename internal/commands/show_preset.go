// internal/commands/show_preset.go
package detrun

import (
	"fmt"

	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

// showPresetCmd implements 'show preset', which prints the options a preset sets.
var showPresetCmd = &cobra.Command{
	Use:   "preset <name>",
	Short: "Show the options of a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		rc, err := runconfig.Preset(args[0], cfg.Presets)
		if err != nil {
			return err
		}
		if cfg.JSONMode {
			return writeJSON(cmd.OutOrStdout(), rc)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Preset: %s\n", args[0])
		fmt.Fprintf(out, "  Output Dir:      %s\n", orNone(rc.OutputDir))
		fmt.Fprintf(out, "  Backbone:        %s\n", orNone(deref(rc.Backbone)))
		if rc.BatchSize != nil {
			fmt.Fprintf(out, "  Batch Size:      %d\n", *rc.BatchSize)
		}
		if len(rc.FeatureExtractionLayers) > 0 {
			fmt.Fprintf(out, "  Layers:          %v\n", rc.FeatureExtractionLayers)
		}
		if len(rc.ProjectorScale) > 0 {
			fmt.Fprintf(out, "  Projector Scale: %v\n", rc.ProjectorScale)
		}
		if rc.DatasetFile != nil {
			fmt.Fprintf(out, "  Dataset:         %s\n", *rc.DatasetFile)
		}
		if rc.DAMode != nil {
			fmt.Fprintf(out, "  DA Mode:         %s\n", *rc.DAMode)
		}
		if rc.Resume != nil {
			fmt.Fprintf(out, "  Resume:          %s\n", *rc.Resume)
		}
		fmt.Fprintf(out, "  Eval:            %v\n", rc.EvalOnly())
		fmt.Fprintf(out, "  Visualize:       %v\n", rc.VisualizeEnabled())
		fmt.Fprintf(out, "  Args:            %s\n", rc.String())
		return nil
	},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	showCmd.AddCommand(showPresetCmd)
}
