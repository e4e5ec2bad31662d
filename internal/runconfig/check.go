// internal/runconfig/check.go
package runconfig

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Severity ranks a finding.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is a single problem detected in a run configuration.
type Finding struct {
	Severity Severity `json:"-"`
	Level    string   `json:"level"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Field == "" {
		return fmt.Sprintf("%s: %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Severity, f.Field, f.Message)
}

// Findings is the result of checking a configuration.
type Findings []Finding

// HasErrors reports whether any finding is an error.
func (fs Findings) HasErrors() bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err joins the error findings into one error, or returns nil.
func (fs Findings) Err() error {
	var msgs []string
	for _, f := range fs {
		if f.Severity == SeverityError {
			msgs = append(msgs, f.String())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("run configuration is invalid: %s", strings.Join(msgs, "; "))
}

func newFinding(sev Severity, field, format string, args ...any) Finding {
	return Finding{Severity: sev, Level: sev.String(), Field: field, Message: fmt.Sprintf(format, args...)}
}

// Schema returns the JSON schema a run configuration document must satisfy.
func Schema() map[string]any {
	modes := make([]any, 0, len(DAModes()))
	for _, m := range DAModes() {
		modes = append(modes, string(m))
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"output_dir": map[string]any{"type": "string", "minLength": 1},
			"backbone":   map[string]any{"type": "string", "minLength": 1},
			"batch_size": map[string]any{"type": "integer", "minimum": 1},
			"feature_extraction_layers": map[string]any{
				"type":        "array",
				"minItems":    1,
				"uniqueItems": true,
				"items":       map[string]any{"type": "integer", "minimum": 0},
			},
			"projector_scale": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "number", "exclusiveMinimum": 0},
			},
			"dataset_file": map[string]any{"type": "string", "pattern": "^[^_].*_to_.*[^_]$"},
			"da_mode":      map[string]any{"type": "string", "enum": modes},
			"resume":       map[string]any{"type": "string", "minLength": 1},
			"eval":         map[string]any{"type": "boolean"},
			"visualize":    map[string]any{"type": "boolean"},
			"extra":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

// ValidateDocument checks a raw configuration document (JSON bytes, or a
// decoded map) against Schema.
func ValidateDocument(document gojsonschema.JSONLoader) (Findings, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(Schema()), document)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var findings Findings
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			field = ""
		}
		findings = append(findings, newFinding(SeverityError, field, "%s", desc.Description()))
	}
	return findings, nil
}

// Check lints a configuration without running anything. It applies the schema
// and then the backbone and dataset catalogs.
func Check(c RunConfig) Findings {
	findings, err := ValidateDocument(gojsonschema.NewGoLoader(c))
	if err != nil {
		findings = append(findings, newFinding(SeverityError, "", "%v", err))
	}
	if c.OutputDir == "" {
		findings = append(findings, newFinding(SeverityWarning, "output_dir", "not set; the training program will use its own default"))
	}
	findings = append(findings, checkBackbone(c)...)
	findings = append(findings, checkDataset(c)...)
	findings = append(findings, checkModes(c)...)
	return findings
}

func checkBackbone(c RunConfig) Findings {
	var findings Findings
	layers, scales := c.FeatureExtractionLayers, c.ProjectorScale
	if len(layers) > 0 && len(scales) > 0 && len(layers) != len(scales) {
		findings = append(findings, newFinding(SeverityError, "projector_scale",
			"has %d scales but feature_extraction_layers has %d layers", len(scales), len(layers)))
	}
	if c.Backbone == nil {
		return findings
	}
	id := *c.Backbone
	if !IsDINOv2(id) {
		if len(layers) > 0 || len(scales) > 0 {
			findings = append(findings, newFinding(SeverityWarning, "backbone",
				"%q is not a DINOv2 backbone; feature_extraction_layers and projector_scale are ignored", id))
		}
		return findings
	}
	b, ok := LookupBackbone(id)
	if !ok {
		findings = append(findings, newFinding(SeverityWarning, "backbone", "%q is not in the backbone catalog; layer indices are not checked", id))
		return findings
	}
	for _, layer := range layers {
		if layer >= b.NumLayers {
			findings = append(findings, newFinding(SeverityError, "feature_extraction_layers",
				"layer %d is out of range for %s (%d layers)", layer, b.ID, b.NumLayers))
		}
	}
	return findings
}

func checkDataset(c RunConfig) Findings {
	if c.DatasetFile == nil {
		return nil
	}
	source, target, err := SplitDatasetFile(*c.DatasetFile)
	if err != nil {
		return Findings{newFinding(SeverityError, "dataset_file", "%v", err)}
	}
	var findings Findings
	src, srcOK := LookupDomain(source)
	if !srcOK {
		findings = append(findings, newFinding(SeverityError, "dataset_file", "unknown source domain %q", source))
	}
	tgt, tgtOK := LookupDomain(target)
	if !tgtOK {
		findings = append(findings, newFinding(SeverityError, "dataset_file", "unknown target domain %q", target))
	}
	if !srcOK || !tgtOK {
		return findings
	}
	if c.EvalOnly() {
		if !tgt.HasVal() {
			findings = append(findings, newFinding(SeverityError, "dataset_file", "target domain %s has no validation split to evaluate on", tgt.Name))
		}
		return findings
	}
	mode := DAModeUDA
	if c.DAMode != nil {
		mode = DAMode(*c.DAMode)
	}
	switch mode {
	case DAModeSourceOnly:
		if !src.HasTrain() {
			findings = append(findings, newFinding(SeverityError, "dataset_file", "source domain %s has no training split", src.Name))
		}
	case DAModeOracle:
		if !tgt.HasTrain() {
			findings = append(findings, newFinding(SeverityError, "dataset_file", "target domain %s has no training split for oracle mode", tgt.Name))
		}
	case DAModeUDA:
		for _, d := range []Domain{src, tgt} {
			if !d.HasTrain() {
				findings = append(findings, newFinding(SeverityError, "dataset_file", "domain %s has no training split for uda mode", d.Name))
			}
		}
	}
	return findings
}

func checkModes(c RunConfig) Findings {
	var findings Findings
	if c.EvalOnly() && c.Resume == nil {
		findings = append(findings, newFinding(SeverityWarning, "resume", "eval without a checkpoint evaluates untrained weights"))
	}
	if c.VisualizeEnabled() && !c.EvalOnly() {
		findings = append(findings, newFinding(SeverityWarning, "visualize", "visualizations are only written during evaluation"))
	}
	return findings
}
