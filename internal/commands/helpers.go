// internal/commands/helpers.go
package detrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

// config returns the merged configuration, or the defaults when the root
// pre-run did not execute (e.g. in tests that call RunE directly).
func config() appconfig.Config {
	if cfg := GetConfig(); cfg != nil {
		return *cfg
	}
	return appconfig.Config{}
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM so a running training
// program gets a chance to stop cleanly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// printFindings writes one line per finding, colored by severity.
func printFindings(out io.Writer, findings runconfig.Findings) {
	for _, f := range findings {
		c := warnColor
		if f.Severity == runconfig.SeverityError {
			c = errColor
		}
		fmt.Fprintln(out, c.Sprint(f.String()))
	}
}

// gate turns findings into an error: errors always fail, warnings only when strict.
func gate(findings runconfig.Findings, strict bool) error {
	if err := findings.Err(); err != nil {
		return err
	}
	if strict && len(findings) > 0 {
		return fmt.Errorf("%d warning(s) with --strict", len(findings))
	}
	return nil
}

// strictGate lets every finding through unless strict is set, in which case
// it fails like gate. Commands that start runs only report findings.
func strictGate(findings runconfig.Findings, strict bool) error {
	if !strict {
		return nil
	}
	return gate(findings, true)
}
