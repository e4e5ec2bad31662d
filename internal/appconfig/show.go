package appconfig

import (
	"fmt"
	"io"
	"strings"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &fallback
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  JSON Mode:       %v\n", cfg.JSONMode)
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Python:          %s\n", cfg.PythonPath())
	if len(cfg.PythonArgs) > 0 {
		fmt.Fprintf(out, "  Python Args:     %s\n", strings.Join(cfg.PythonArgs, " "))
	}
	fmt.Fprintf(out, "  Entrypoint:      %s\n", cfg.EntrypointPath())
	if cfg.Workdir != "" {
		fmt.Fprintf(out, "  Workdir:         %s\n", cfg.Workdir)
	}
	fmt.Fprintf(out, "  Stop Grace:      %s\n", cfg.StopGrace())
	fmt.Fprintf(out, "  Metrics:         %v\n", cfg.Metrics)
	if cfg.Metrics {
		fmt.Fprintf(out, "  Metrics File:    %s\n", cfg.MetricsFilePath())
	}
	if keys := cfg.EnvKeys(); len(keys) > 0 {
		fmt.Fprintf(out, "  Env:             %s\n", strings.Join(keys, ", "))
	}
	if cfg.Preset != "" {
		fmt.Fprintf(out, "  Preset:          %s\n", cfg.Preset)
	}
	if len(cfg.Presets) > 0 {
		fmt.Fprintf(out, "  Custom Presets:  %d\n", len(cfg.Presets))
	}
	if args := cfg.Run.String(); args != "" {
		fmt.Fprintf(out, "  Run:             %s\n", args)
	}
}
