// internal/runconfig/runconfig.go
// Package runconfig holds the settings of a single training or evaluation run
// and renders them as arguments for the external training program.
package runconfig

import (
	"math"
	"strconv"
	"strings"
)

// RunConfig is a flat set of options forwarded to the training program.
// Optional options are nil when unset so that an unset option is never
// confused with its zero value.
type RunConfig struct {
	OutputDir               string    `json:"output_dir,omitempty" mapstructure:"output_dir"`
	Backbone                *string   `json:"backbone,omitempty" mapstructure:"backbone"`
	BatchSize               *int      `json:"batch_size,omitempty" mapstructure:"batch_size"`
	FeatureExtractionLayers []int     `json:"feature_extraction_layers,omitempty" mapstructure:"feature_extraction_layers"`
	ProjectorScale          []float64 `json:"projector_scale,omitempty" mapstructure:"projector_scale"`
	DatasetFile             *string   `json:"dataset_file,omitempty" mapstructure:"dataset_file"`
	DAMode                  *string   `json:"da_mode,omitempty" mapstructure:"da_mode"`
	Resume                  *string   `json:"resume,omitempty" mapstructure:"resume"`
	Eval                    *bool     `json:"eval,omitempty" mapstructure:"eval"`
	Visualize               *bool     `json:"visualize,omitempty" mapstructure:"visualize"`
	Extra                   []string  `json:"extra,omitempty" mapstructure:"extra"`
}

// Flag names understood by the training program.
const (
	FlagOutputDir               = "--output_dir"
	FlagBackbone                = "--backbone"
	FlagBatchSize               = "--batch_size"
	FlagFeatureExtractionLayers = "--feature_extraction_layers"
	FlagProjectorScale          = "--projector_scale"
	FlagDatasetFile             = "--dataset_file"
	FlagDAMode                  = "--DA_mode"
	FlagResume                  = "--resume"
	FlagEval                    = "--eval"
	FlagVisualize               = "--visualize"
)

// Args renders the configuration as command-line arguments. Options that are
// not set produce no arguments; sequences are written as one flag followed by
// one argument per element.
func (c RunConfig) Args() []string {
	var args []string
	if c.OutputDir != "" {
		args = append(args, FlagOutputDir, c.OutputDir)
	}
	if c.Backbone != nil {
		args = append(args, FlagBackbone, *c.Backbone)
	}
	if c.BatchSize != nil {
		args = append(args, FlagBatchSize, strconv.Itoa(*c.BatchSize))
	}
	if len(c.FeatureExtractionLayers) > 0 {
		args = append(args, FlagFeatureExtractionLayers)
		for _, layer := range c.FeatureExtractionLayers {
			args = append(args, strconv.Itoa(layer))
		}
	}
	if len(c.ProjectorScale) > 0 {
		args = append(args, FlagProjectorScale)
		for _, scale := range c.ProjectorScale {
			args = append(args, FormatFloat(scale))
		}
	}
	if c.DatasetFile != nil {
		args = append(args, FlagDatasetFile, *c.DatasetFile)
	}
	if c.DAMode != nil {
		args = append(args, FlagDAMode, *c.DAMode)
	}
	if c.Resume != nil {
		args = append(args, FlagResume, *c.Resume)
	}
	if isTrue(c.Eval) {
		args = append(args, FlagEval)
	}
	if isTrue(c.Visualize) {
		args = append(args, FlagVisualize)
	}
	return append(args, c.Extra...)
}

// String returns the arguments as a single shell-quoted line.
func (c RunConfig) String() string {
	return QuoteArgs(c.Args())
}

// Merge returns a copy of c with every option that is set in override
// replacing the corresponding option of c. Extra arguments are appended.
func (c RunConfig) Merge(override RunConfig) RunConfig {
	out := c.Clone()
	if override.OutputDir != "" {
		out.OutputDir = override.OutputDir
	}
	if override.Backbone != nil {
		out.Backbone = ptrString(*override.Backbone)
	}
	if override.BatchSize != nil {
		out.BatchSize = ptrInt(*override.BatchSize)
	}
	if len(override.FeatureExtractionLayers) > 0 {
		out.FeatureExtractionLayers = append([]int(nil), override.FeatureExtractionLayers...)
	}
	if len(override.ProjectorScale) > 0 {
		out.ProjectorScale = append([]float64(nil), override.ProjectorScale...)
	}
	if override.DatasetFile != nil {
		out.DatasetFile = ptrString(*override.DatasetFile)
	}
	if override.DAMode != nil {
		out.DAMode = ptrString(*override.DAMode)
	}
	if override.Resume != nil {
		out.Resume = ptrString(*override.Resume)
	}
	if override.Eval != nil {
		out.Eval = ptrBool(*override.Eval)
	}
	if override.Visualize != nil {
		out.Visualize = ptrBool(*override.Visualize)
	}
	out.Extra = append(out.Extra, override.Extra...)
	return out
}

// Clone returns a deep copy so callers can never alias another run's slices
// or pointers.
func (c RunConfig) Clone() RunConfig {
	out := RunConfig{OutputDir: c.OutputDir}
	if c.Backbone != nil {
		out.Backbone = ptrString(*c.Backbone)
	}
	if c.BatchSize != nil {
		out.BatchSize = ptrInt(*c.BatchSize)
	}
	if c.FeatureExtractionLayers != nil {
		out.FeatureExtractionLayers = append([]int(nil), c.FeatureExtractionLayers...)
	}
	if c.ProjectorScale != nil {
		out.ProjectorScale = append([]float64(nil), c.ProjectorScale...)
	}
	if c.DatasetFile != nil {
		out.DatasetFile = ptrString(*c.DatasetFile)
	}
	if c.DAMode != nil {
		out.DAMode = ptrString(*c.DAMode)
	}
	if c.Resume != nil {
		out.Resume = ptrString(*c.Resume)
	}
	if c.Eval != nil {
		out.Eval = ptrBool(*c.Eval)
	}
	if c.Visualize != nil {
		out.Visualize = ptrBool(*c.Visualize)
	}
	if c.Extra != nil {
		out.Extra = append([]string(nil), c.Extra...)
	}
	return out
}

// EvalOnly reports whether the run only evaluates.
func (c RunConfig) EvalOnly() bool { return isTrue(c.Eval) }

// VisualizeEnabled reports whether the run emits visualizations.
func (c RunConfig) VisualizeEnabled() bool { return isTrue(c.Visualize) }

// FormatFloat renders a float so that whole numbers keep a decimal point
// (4 -> "4.0"), the way the shell launch scripts write them.
func FormatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// QuoteArgs joins args into one line, single-quoting any argument that a POSIX
// shell would otherwise split or expand.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	safe := true
	for _, r := range arg {
		if !isShellSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", r)
}

func isTrue(b *bool) bool { return b != nil && *b }

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// String returns a pointer to v, for building configurations in code.
func String(v string) *string { return ptrString(v) }

// Int returns a pointer to v.
func Int(v int) *int { return ptrInt(v) }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return ptrBool(v) }
