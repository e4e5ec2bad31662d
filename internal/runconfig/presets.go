// internal/runconfig/presets.go
package runconfig

import (
	"fmt"
	"sort"
	"strings"
)

// PresetName identifies a built-in run preset.
type PresetName string

const (
	PresetTrain      PresetName = "train"
	PresetTrainGiant PresetName = "train-giant"
	PresetEval       PresetName = "eval"
	PresetVisualize  PresetName = "visualize"
)

const (
	defaultBackbone      = "facebook/dinov2-base"
	giantBackbone        = "facebook/dinov2-giant"
	defaultDatasetFile   = "xView_to_DOTA"
	defaultTrainOutput   = "./exp/train"
	defaultEvalOutput    = "./exp/eval"
	defaultVisOutput     = "./exp/vis"
	defaultGiantOutput   = "./exp/train_giant"
	defaultResumeCheckpt = "./exp/train/checkpoint.pth"
)

// DefaultTrainConfig mirrors the UDA training script: DINOv2 base with four
// intermediate layers projected to four scales.
func DefaultTrainConfig() RunConfig {
	return RunConfig{
		OutputDir:               defaultTrainOutput,
		Backbone:                ptrString(defaultBackbone),
		BatchSize:               ptrInt(2),
		FeatureExtractionLayers: []int{2, 5, 8, 11},
		ProjectorScale:          []float64{4.0, 2.0, 1.0, 0.5},
		DatasetFile:             ptrString(defaultDatasetFile),
		DAMode:                  ptrString(string(DAModeUDA)),
	}
}

// DefaultTrainGiantConfig swaps in the 40-layer giant backbone and the
// coarser projector scales used with it.
func DefaultTrainGiantConfig() RunConfig {
	return RunConfig{
		OutputDir:               defaultGiantOutput,
		Backbone:                ptrString(giantBackbone),
		BatchSize:               ptrInt(1),
		FeatureExtractionLayers: []int{9, 19, 29, 39},
		ProjectorScale:          []float64{2.0, 1.0, 0.5, 0.25},
		DatasetFile:             ptrString(defaultDatasetFile),
		DAMode:                  ptrString(string(DAModeUDA)),
	}
}

// DefaultEvalConfig evaluates a trained checkpoint on the target validation split.
func DefaultEvalConfig() RunConfig {
	return RunConfig{
		OutputDir: defaultEvalOutput,
		BatchSize: ptrInt(8),
		Resume:    ptrString(defaultResumeCheckpt),
		Eval:      ptrBool(true),
	}
}

// DefaultVisualizeConfig evaluates one image at a time and writes box overlays.
func DefaultVisualizeConfig() RunConfig {
	return RunConfig{
		OutputDir: defaultVisOutput,
		BatchSize: ptrInt(1),
		Resume:    ptrString(defaultResumeCheckpt),
		Eval:      ptrBool(true),
		Visualize: ptrBool(true),
	}
}

// BuiltinPresets returns a fresh copy of every built-in preset.
func BuiltinPresets() map[string]RunConfig {
	return map[string]RunConfig{
		string(PresetTrain):      DefaultTrainConfig(),
		string(PresetTrainGiant): DefaultTrainGiantConfig(),
		string(PresetEval):       DefaultEvalConfig(),
		string(PresetVisualize):  DefaultVisualizeConfig(),
	}
}

// Preset resolves name against the user-defined presets first and the
// built-ins second. Names are matched case-insensitively.
func Preset(name string, custom map[string]RunConfig) (RunConfig, error) {
	n := normalizePresetName(name)
	if n == "" {
		return RunConfig{}, fmt.Errorf("preset name is empty")
	}
	for key, rc := range custom {
		if normalizePresetName(key) == n {
			return rc.Clone(), nil
		}
	}
	if rc, ok := BuiltinPresets()[n]; ok {
		return rc, nil
	}
	return RunConfig{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(custom), ", "))
}

// PresetNames lists built-in and custom preset names, sorted and deduplicated.
func PresetNames(custom map[string]RunConfig) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		n := normalizePresetName(name)
		if _, ok := seen[n]; ok || n == "" {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for name := range BuiltinPresets() {
		add(name)
	}
	for name := range custom {
		add(name)
	}
	sort.Strings(names)
	return names
}

func normalizePresetName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(n, "_", "-")
}
