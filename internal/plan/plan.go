// internal/plan/plan.go
// Package plan loads HCL plan files describing several runs and the order
// they depend on each other in.
package plan

import (
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

// header is the first decoding pass: variables only, runs left for later.
type header struct {
	Variables hcl.Expression `hcl:"variables,optional"`
	Remain    hcl.Body       `hcl:",remain"`
}

type body struct {
	Runs []*runBlock `hcl:"run,block"`
}

type runBlock struct {
	Name                    string    `hcl:"name,label"`
	Preset                  *string   `hcl:"preset,optional"`
	OutputDir               *string   `hcl:"output_dir,optional"`
	Backbone                *string   `hcl:"backbone,optional"`
	BatchSize               *int      `hcl:"batch_size,optional"`
	FeatureExtractionLayers []int     `hcl:"feature_extraction_layers,optional"`
	ProjectorScale          []float64 `hcl:"projector_scale,optional"`
	DatasetFile             *string   `hcl:"dataset_file,optional"`
	DAMode                  *string   `hcl:"da_mode,optional"`
	Resume                  *string   `hcl:"resume,optional"`
	Eval                    *bool     `hcl:"eval,optional"`
	Visualize               *bool     `hcl:"visualize,optional"`
	Extra                   []string  `hcl:"extra,optional"`
	DependsOn               []string  `hcl:"depends_on,optional"`
}

// Run is one run block: an optional preset plus the options set on top of it.
type Run struct {
	Name      string
	Preset    string
	Config    runconfig.RunConfig
	DependsOn []string
}

// Plan is a parsed plan file.
type Plan struct {
	Path      string
	Variables map[string]cty.Value
	Runs      []Run

	graph graph.Graph[string, string]
	index map[string]int
}

// ParseVars parses k=v overrides.
func ParseVars(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid variable %q, expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// Load parses the plan at path. overrides replace (or add) entries of the
// file's variables map and are visible to expressions as var.<name>.
func Load(path string, overrides map[string]string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parse plan %s", path)
	}
	return decode(path, file.Body, overrides)
}

// Parse parses plan source held in memory; filename is used in diagnostics.
func Parse(src []byte, filename string, overrides map[string]string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parse plan %s", filename)
	}
	return decode(filename, file.Body, overrides)
}

func decode(path string, root hcl.Body, overrides map[string]string) (*Plan, error) {
	var h header
	if diags := gohcl.DecodeBody(root, nil, &h); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "decode plan %s", path)
	}

	vars, err := evalVariables(h.Variables, overrides)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)},
	}

	var b body
	if diags := gohcl.DecodeBody(h.Remain, evalCtx, &b); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "decode plan %s", path)
	}

	p := &Plan{Path: path, Variables: vars, index: make(map[string]int, len(b.Runs))}
	for _, rb := range b.Runs {
		if _, dup := p.index[rb.Name]; dup {
			return nil, errors.Errorf("plan %s: duplicate run %q", path, rb.Name)
		}
		p.index[rb.Name] = len(p.Runs)
		p.Runs = append(p.Runs, rb.toRun())
	}
	if err := p.buildGraph(); err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	return p, nil
}

func evalVariables(expr hcl.Expression, overrides map[string]string) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value)
	if expr != nil {
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, errors.Wrap(diags, "variables")
		}
		if !val.IsNull() {
			ty := val.Type()
			if !ty.IsObjectType() && !ty.IsMapType() {
				return nil, errors.Errorf("variables must be an object, got %s", ty.FriendlyName())
			}
			for k, v := range val.AsValueMap() {
				vars[k] = v
			}
		}
	}
	for k, v := range overrides {
		vars[k] = cty.StringVal(v)
	}
	return vars, nil
}

func (rb *runBlock) toRun() Run {
	r := Run{Name: rb.Name, DependsOn: rb.DependsOn}
	if rb.Preset != nil {
		r.Preset = *rb.Preset
	}
	r.Config = runconfig.RunConfig{
		Backbone:                rb.Backbone,
		BatchSize:               rb.BatchSize,
		FeatureExtractionLayers: rb.FeatureExtractionLayers,
		ProjectorScale:          rb.ProjectorScale,
		DatasetFile:             rb.DatasetFile,
		DAMode:                  rb.DAMode,
		Resume:                  rb.Resume,
		Eval:                    rb.Eval,
		Visualize:               rb.Visualize,
		Extra:                   rb.Extra,
	}
	if rb.OutputDir != nil {
		r.Config.OutputDir = *rb.OutputDir
	}
	return r
}

func (p *Plan) buildGraph() error {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, r := range p.Runs {
		if err := g.AddVertex(r.Name, graph.VertexAttribute("shape", "box")); err != nil {
			return errors.Wrapf(err, "add run %q", r.Name)
		}
	}
	for _, r := range p.Runs {
		for _, dep := range r.DependsOn {
			if dep == r.Name {
				return errors.Errorf("run %q depends on itself", r.Name)
			}
			if _, ok := p.index[dep]; !ok {
				return errors.Errorf("run %q depends on unknown run %q", r.Name, dep)
			}
			if err := g.AddEdge(dep, r.Name); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return errors.Errorf("dependency cycle: %q -> %q closes a loop", dep, r.Name)
				}
				if errors.Is(err, graph.ErrEdgeAlreadyExists) {
					continue
				}
				return errors.Wrapf(err, "link %q -> %q", dep, r.Name)
			}
		}
	}
	p.graph = g
	return nil
}

// Order returns the run names so that every run follows its dependencies.
// Independent runs keep their order in the file.
func (p *Plan) Order() ([]string, error) {
	order, err := graph.StableTopologicalSort(p.graph, func(a, b string) bool {
		return p.index[a] < p.index[b]
	})
	if err != nil {
		return nil, errors.Wrap(err, "order runs")
	}
	return order, nil
}

// Run returns the named run.
func (p *Plan) Run(name string) (Run, bool) {
	i, ok := p.index[name]
	if !ok {
		return Run{}, false
	}
	return p.Runs[i], true
}

// VariableNames lists the variables visible to the plan, sorted.
func (p *Plan) VariableNames() []string {
	names := make([]string, 0, len(p.Variables))
	for k := range p.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolver turns a preset name and a set of options into a full run configuration.
type Resolver func(preset string, override runconfig.RunConfig) (runconfig.RunConfig, error)

// Step is a run with its configuration resolved.
type Step struct {
	Name      string
	DependsOn []string
	Config    runconfig.RunConfig
}

// Steps resolves every run in dependency order.
func (p *Plan) Steps(resolve Resolver) ([]Step, error) {
	order, err := p.Order()
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(order))
	for _, name := range order {
		r, _ := p.Run(name)
		rc, err := resolve(r.Preset, r.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve run %q", name)
		}
		steps = append(steps, Step{Name: name, DependsOn: r.DependsOn, Config: rc})
	}
	return steps, nil
}
