// internal/commands/list_catalog.go
package detrun

import (
	"fmt"
	"strings"

	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

// listPresetsCmd implements 'list presets'.
var listPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in and configured presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config()
		names := runconfig.PresetNames(cfg.Presets)
		if cfg.JSONMode {
			out := make([]map[string]any, 0, len(names))
			for _, name := range names {
				rc, err := runconfig.Preset(name, cfg.Presets)
				if err != nil {
					return err
				}
				out = append(out, map[string]any{"name": name, "args": rc.Args()})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		}

		width := 0
		for _, name := range names {
			width = max(width, len(name))
		}
		for _, name := range names {
			rc, err := runconfig.Preset(name, cfg.Presets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %-*s  %s\n", width, name, rc.String())
		}
		return nil
	},
}

// listBackbonesCmd implements 'list backbones'.
var listBackbonesCmd = &cobra.Command{
	Use:   "backbones",
	Short: "List known backbones and their layer counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		backbones := runconfig.Backbones()
		if config().JSONMode {
			return writeJSON(cmd.OutOrStdout(), backbones)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  %-24s %-8s %7s %7s\n", "BACKBONE", "FAMILY", "LAYERS", "HIDDEN")
		for _, b := range backbones {
			layers, hidden := "-", "-"
			if b.NumLayers > 0 {
				layers = fmt.Sprint(b.NumLayers)
			}
			if b.HiddenSize > 0 {
				hidden = fmt.Sprint(b.HiddenSize)
			}
			fmt.Fprintf(out, "  %-24s %-8s %7s %7s\n", b.ID, b.Family, layers, hidden)
		}
		return nil
	},
}

// listDatasetsCmd implements 'list datasets'.
var listDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List registered domains and their splits",
	RunE: func(cmd *cobra.Command, args []string) error {
		domains := runconfig.Domains()
		if config().JSONMode {
			return writeJSON(cmd.OutOrStdout(), domains)
		}
		out := cmd.OutOrStdout()
		for _, d := range domains {
			var splits []string
			if d.HasTrain() {
				splits = append(splits, "train")
			}
			if d.HasVal() {
				splits = append(splits, "val")
			}
			fmt.Fprintf(out, "  %-8s %s\n", d.Name, strings.Join(splits, ", "))
		}
		modes := make([]string, 0, 3)
		for _, m := range runconfig.DAModes() {
			modes = append(modes, string(m))
		}
		fmt.Fprintf(out, "da_mode: %s\n", strings.Join(modes, ", "))
		return nil
	},
}

func init() {
	listCmd.AddCommand(listPresetsCmd)
	listCmd.AddCommand(listBackbonesCmd)
	listCmd.AddCommand(listDatasetsCmd)
}
