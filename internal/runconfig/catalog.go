// internal/runconfig/catalog.go
package runconfig

import (
	"fmt"
	"sort"
	"strings"
)

// BackboneFamily groups backbones that the training program builds the same way.
type BackboneFamily string

const (
	FamilyDINOv2 BackboneFamily = "dinov2"
	FamilyResNet BackboneFamily = "resnet"
)

// Backbone describes a pretrained backbone the training program can load.
type Backbone struct {
	ID         string
	Family     BackboneFamily
	NumLayers  int
	HiddenSize int
	PatchSize  int
}

// SupportsLayerSelection reports whether feature_extraction_layers and
// projector_scale have any effect for this backbone.
func (b Backbone) SupportsLayerSelection() bool { return b.Family == FamilyDINOv2 }

var backbones = []Backbone{
	{ID: "facebook/dinov2-small", Family: FamilyDINOv2, NumLayers: 12, HiddenSize: 384, PatchSize: 14},
	{ID: "facebook/dinov2-base", Family: FamilyDINOv2, NumLayers: 12, HiddenSize: 768, PatchSize: 14},
	{ID: "facebook/dinov2-large", Family: FamilyDINOv2, NumLayers: 24, HiddenSize: 1024, PatchSize: 14},
	{ID: "facebook/dinov2-giant", Family: FamilyDINOv2, NumLayers: 40, HiddenSize: 1536, PatchSize: 14},
	{ID: "resnet50", Family: FamilyResNet},
	{ID: "resnet101", Family: FamilyResNet},
}

// Backbones returns the known backbones in catalog order.
func Backbones() []Backbone {
	return append([]Backbone(nil), backbones...)
}

// LookupBackbone finds a backbone by its full identifier or by the part after
// the last slash ("dinov2-base"), ignoring case.
func LookupBackbone(id string) (Backbone, bool) {
	want := strings.ToLower(strings.TrimSpace(id))
	if want == "" {
		return Backbone{}, false
	}
	for _, b := range backbones {
		full := strings.ToLower(b.ID)
		if full == want || shortName(full) == shortName(want) {
			return b, true
		}
	}
	return Backbone{}, false
}

// IsDINOv2 reports whether the training program would build id as a DINOv2
// backbone. The program only looks for the substring, so unknown checkpoints
// such as local fine-tunes are covered too.
func IsDINOv2(id string) bool {
	return strings.Contains(strings.ToLower(id), string(FamilyDINOv2))
}

func shortName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// DAMode selects which images the training program draws from each domain.
type DAMode string

const (
	DAModeSourceOnly DAMode = "source_only"
	DAModeOracle     DAMode = "oracle"
	DAModeUDA        DAMode = "uda"
)

// DAModes lists every accepted domain-adaptation mode.
func DAModes() []DAMode {
	return []DAMode{DAModeSourceOnly, DAModeOracle, DAModeUDA}
}

// Domain is a dataset the training program knows the on-disk layout of.
type Domain struct {
	Name      string
	TrainImg  string
	TrainAnno string
	ValImg    string
	ValAnno   string
}

// HasTrain reports whether the domain has a labelled training split.
func (d Domain) HasTrain() bool { return d.TrainImg != "" && d.TrainAnno != "" }

// HasVal reports whether the domain has a validation split.
func (d Domain) HasVal() bool { return d.ValImg != "" && d.ValAnno != "" }

var domains = map[string]Domain{
	"xView": {
		Name:      "xView",
		TrainImg:  "/input0/xView/images",
		TrainAnno: "/input0/xView/annotations/train_3c.json",
	},
	"DOTA": {
		Name:      "DOTA",
		TrainImg:  "/input0/DOTA/train/images",
		TrainAnno: "/input0/DOTA/annotations/train_3c.json",
		ValImg:    "/input0/DOTA/val/images",
		ValAnno:   "/input0/DOTA/annotations/val_3c.json",
	},
}

// Domains returns the registered domains sorted by name.
func Domains() []Domain {
	out := make([]Domain, 0, len(domains))
	for _, d := range domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupDomain returns the registered domain with the given name.
func LookupDomain(name string) (Domain, bool) {
	d, ok := domains[name]
	return d, ok
}

const domainSeparator = "_to_"

// SplitDatasetFile splits "<source>_to_<target>" into its two domain names.
func SplitDatasetFile(datasetFile string) (source, target string, err error) {
	parts := strings.Split(datasetFile, domainSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("dataset_file %q must look like <source>%s<target>", datasetFile, domainSeparator)
	}
	return parts[0], parts[1], nil
}
