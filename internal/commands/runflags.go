// internal/commands/runflags.go
package detrun

import (
	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/spf13/cobra"
)

// runFlags are the command-line options that map onto a run configuration.
// Only flags the user actually set override the preset and config file.
type runFlags struct {
	preset    string
	outputDir string
	backbone  string
	batchSize int
	layers    []int
	scales    []float64
	dataset   string
	daMode    string
	resume    string
	eval      bool
	visualize bool
	extra     []string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.preset, "preset", "p", "", "start from a named preset (train, train-giant, eval, visualize or a custom one)")
	fs.StringVar(&f.outputDir, "output_dir", "", "destination for logs and checkpoints")
	fs.StringVar(&f.backbone, "backbone", "", "pretrained backbone identifier, e.g. facebook/dinov2-base")
	fs.IntVar(&f.batchSize, "batch_size", 0, "training or evaluation batch size")
	fs.IntSliceVar(&f.layers, "feature_extraction_layers", nil, "backbone layers feeding the detector, e.g. 2,5,8,11")
	fs.Float64SliceVar(&f.scales, "projector_scale", nil, "projector scale factors, e.g. 4,2,1,0.5")
	fs.StringVar(&f.dataset, "dataset_file", "", "domain pair as <source>_to_<target>, e.g. xView_to_DOTA")
	fs.StringVar(&f.daMode, "da_mode", "", "domain adaptation mode: source_only, oracle or uda")
	fs.StringVar(&f.resume, "resume", "", "checkpoint to resume from")
	fs.BoolVar(&f.eval, "eval", false, "run evaluation only")
	fs.BoolVar(&f.visualize, "visualize", false, "write visualization outputs")
	fs.StringArrayVar(&f.extra, "extra", nil, "raw argument appended verbatim (repeatable)")
}

// override collects the flags that were set on cmd.
func (f *runFlags) override(cmd *cobra.Command) runconfig.RunConfig {
	fs := cmd.Flags()
	var rc runconfig.RunConfig
	if fs.Changed("output_dir") {
		rc.OutputDir = f.outputDir
	}
	if fs.Changed("backbone") {
		rc.Backbone = runconfig.String(f.backbone)
	}
	if fs.Changed("batch_size") {
		rc.BatchSize = runconfig.Int(f.batchSize)
	}
	if fs.Changed("feature_extraction_layers") {
		rc.FeatureExtractionLayers = append([]int{}, f.layers...)
	}
	if fs.Changed("projector_scale") {
		rc.ProjectorScale = append([]float64{}, f.scales...)
	}
	if fs.Changed("dataset_file") {
		rc.DatasetFile = runconfig.String(f.dataset)
	}
	if fs.Changed("da_mode") {
		rc.DAMode = runconfig.String(f.daMode)
	}
	if fs.Changed("resume") {
		rc.Resume = runconfig.String(f.resume)
	}
	if fs.Changed("eval") {
		rc.Eval = runconfig.Bool(f.eval)
	}
	if fs.Changed("visualize") {
		rc.Visualize = runconfig.Bool(f.visualize)
	}
	if fs.Changed("extra") {
		rc.Extra = append([]string{}, f.extra...)
	}
	return rc
}

// resolve merges preset, config file and flags (flags win). A positional
// argument names the preset when --preset is not given.
func (f *runFlags) resolve(cmd *cobra.Command, args []string, cfg appconfig.Config) (string, runconfig.RunConfig, error) {
	preset := f.preset
	if preset == "" && len(args) > 0 {
		preset = args[0]
	}
	rc, err := cfg.ResolveRun(preset, f.override(cmd))
	if err != nil {
		return "", runconfig.RunConfig{}, err
	}
	name := preset
	if name == "" {
		name = cfg.Preset
	}
	if name == "" {
		name = "default"
	}
	return name, rc, nil
}
