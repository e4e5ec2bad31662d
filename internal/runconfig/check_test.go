// internal/runconfig/check_test.go
package runconfig

import (
	"strings"
	"testing"

	"github.com/xeipuuv/gojsonschema"
)

func hasFinding(fs Findings, sev Severity, field, substr string) bool {
	for _, f := range fs {
		if f.Severity == sev && f.Field == field && strings.Contains(f.Message, substr) {
			return true
		}
	}
	return false
}

func TestCheckBuiltinPresetsAreClean(t *testing.T) {
	t.Parallel()

	for name, rc := range BuiltinPresets() {
		if fs := Check(rc); fs.HasErrors() {
			t.Fatalf("preset %s has errors: %v", name, fs)
		}
	}
}

func TestCheckSchemaErrors(t *testing.T) {
	t.Parallel()

	rc := RunConfig{
		OutputDir:      "out",
		BatchSize:      Int(0),
		ProjectorScale: []float64{1, -0.5},
		DAMode:         String("semi"),
	}
	fs := Check(rc)
	if !fs.HasErrors() {
		t.Fatalf("expected errors, got %v", fs)
	}
	for _, field := range []string{"batch_size", "projector_scale.1", "da_mode"} {
		found := false
		for _, f := range fs {
			if f.Field == field && f.Severity == SeverityError {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected an error on %s, got %v", field, fs)
		}
	}
	if fs.Err() == nil {
		t.Fatalf("Err() should be non-nil when errors exist")
	}
}

func TestCheckLayerRange(t *testing.T) {
	t.Parallel()

	rc := DefaultTrainConfig()
	rc.FeatureExtractionLayers = []int{9, 19, 29, 39}
	fs := Check(rc)
	if !hasFinding(fs, SeverityError, "feature_extraction_layers", "layer 19 is out of range") {
		t.Fatalf("expected out of range layer for dinov2-base, got %v", fs)
	}

	rc.Backbone = String("dinov2-giant")
	if fs := Check(rc); fs.HasErrors() {
		t.Fatalf("giant layers should fit the giant backbone, got %v", fs)
	}
}

func TestCheckLengthMismatch(t *testing.T) {
	t.Parallel()

	rc := DefaultTrainConfig()
	rc.ProjectorScale = []float64{2, 1}
	if fs := Check(rc); !hasFinding(fs, SeverityError, "projector_scale", "has 2 scales") {
		t.Fatalf("expected scale/layer length mismatch, got %v", fs)
	}
}

func TestCheckNonDINOv2Warns(t *testing.T) {
	t.Parallel()

	rc := DefaultTrainConfig()
	rc.Backbone = String("resnet50")
	fs := Check(rc)
	if fs.HasErrors() {
		t.Fatalf("unexpected errors: %v", fs)
	}
	if !hasFinding(fs, SeverityWarning, "backbone", "not a DINOv2 backbone") {
		t.Fatalf("expected warning for resnet with layer selection, got %v", fs)
	}
}

func TestCheckDatasets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rc     RunConfig
		substr string
	}{
		{
			name:   "unknown domain",
			rc:     RunConfig{OutputDir: "o", DatasetFile: String("xView_to_GTA")},
			substr: "unknown target domain",
		},
		{
			name:   "malformed",
			rc:     RunConfig{OutputDir: "o", DatasetFile: String("DOTA")},
			substr: "must look like",
		},
		{
			name:   "eval on domain without val",
			rc:     RunConfig{OutputDir: "o", DatasetFile: String("DOTA_to_xView"), Eval: Bool(true), Resume: String("c.pth")},
			substr: "no validation split",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if fs := Check(tt.rc); !hasFinding(fs, SeverityError, "dataset_file", tt.substr) {
				t.Fatalf("expected %q, got %v", tt.substr, fs)
			}
		})
	}
}

func TestCheckModeWarnings(t *testing.T) {
	t.Parallel()

	fs := Check(RunConfig{OutputDir: "o", Eval: Bool(true)})
	if !hasFinding(fs, SeverityWarning, "resume", "untrained") {
		t.Fatalf("expected resume warning, got %v", fs)
	}
	fs = Check(RunConfig{OutputDir: "o", Visualize: Bool(true)})
	if !hasFinding(fs, SeverityWarning, "visualize", "only written during evaluation") {
		t.Fatalf("expected visualize warning, got %v", fs)
	}
}

func TestValidateDocumentRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	fs, err := ValidateDocument(gojsonschema.NewStringLoader(`{"output_dir": "o", "batchsize": 2}`))
	if err != nil {
		t.Fatalf("ValidateDocument error: %v", err)
	}
	if !fs.HasErrors() {
		t.Fatalf("expected additional property error")
	}
}
