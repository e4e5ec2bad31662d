// internal/plan/plan_test.go
package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
variables = {
  root  = "./exp"
  batch = 4
}

run "train" {
  preset     = "train"
  output_dir = "${var.root}/train"
  batch_size = var.batch
}

run "eval" {
  preset     = "eval"
  output_dir = "${var.root}/eval"
  resume     = "${var.root}/train/checkpoint.pth"
  depends_on = ["train"]
}

run "vis" {
  preset     = "visualize"
  resume     = "${var.root}/train/checkpoint.pth"
  depends_on = ["train"]
}

run "report" {
  extra      = ["--note", "done"]
  depends_on = ["eval", "vis"]
}
`

func presetResolver(preset string, override runconfig.RunConfig) (runconfig.RunConfig, error) {
	var base runconfig.RunConfig
	if preset != "" {
		p, err := runconfig.Preset(preset, nil)
		if err != nil {
			return runconfig.RunConfig{}, err
		}
		base = p
	}
	return base.Merge(override), nil
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)
	require.Len(t, p.Runs, 4)
	assert.Equal(t, []string{"batch", "root"}, p.VariableNames())

	train, ok := p.Run("train")
	require.True(t, ok)
	assert.Equal(t, "train", train.Preset)
	assert.Equal(t, "./exp/train", train.Config.OutputDir)
	require.NotNil(t, train.Config.BatchSize)
	assert.Equal(t, 4, *train.Config.BatchSize)
	assert.Nil(t, train.Config.Backbone)

	report, _ := p.Run("report")
	assert.Equal(t, []string{"--note", "done"}, report.Config.Extra)
	assert.Equal(t, []string{"eval", "vis"}, report.DependsOn)

	order, err := p.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "eval", "vis", "report"}, order)
}

func TestParseVarOverrides(t *testing.T) {
	vars, err := ParseVars([]string{"root=/data/exp", "batch=16"})
	require.NoError(t, err)

	p, err := Parse([]byte(samplePlan), "sample.hcl", vars)
	require.NoError(t, err)
	train, _ := p.Run("train")
	assert.Equal(t, "/data/exp/train", train.Config.OutputDir)
	assert.Equal(t, 16, *train.Config.BatchSize)

	_, err = ParseVars([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseVars([]string{"=x"})
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown dependency",
			src:  `run "a" { depends_on = ["missing"] }`,
			want: `depends on unknown run "missing"`,
		},
		{
			name: "cycle",
			src: `
run "a" { depends_on = ["b"] }
run "b" { depends_on = ["a"] }
`,
			want: "dependency cycle",
		},
		{
			name: "self dependency",
			src:  `run "a" { depends_on = ["a"] }`,
			want: "depends on itself",
		},
		{
			name: "duplicate run",
			src: `
run "a" {}
run "a" {}
`,
			want: `duplicate run "a"`,
		},
		{
			name: "undefined variable",
			src:  `run "a" { output_dir = var.nope }`,
			want: "decode plan",
		},
		{
			name: "unknown attribute",
			src:  `run "a" { learning_rate = 1 }`,
			want: "decode plan",
		},
		{
			name: "variables not an object",
			src:  `variables = "x"`,
			want: "variables must be an object",
		},
		{
			name: "syntax error",
			src:  `run "a" {`,
			want: "parse plan",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.hcl")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))

	p, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, p.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"), nil)
	assert.Error(t, err)
}

func TestSteps(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)

	steps, err := p.Steps(presetResolver)
	require.NoError(t, err)
	require.Len(t, steps, 4)

	eval := steps[1]
	assert.Equal(t, "eval", eval.Name)
	assert.True(t, eval.Config.EvalOnly())
	assert.Equal(t, "./exp/train/checkpoint.pth", *eval.Config.Resume)
	assert.Equal(t, 8, *eval.Config.BatchSize)

	broken := `run "a" { preset = "nope" }`
	p, err = Parse([]byte(broken), "broken.hcl", nil)
	require.NoError(t, err)
	_, err = p.Steps(presetResolver)
	assert.ErrorContains(t, err, `resolve run "a"`)
}

func TestWriteDOT(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.WriteDOT(&buf))
	out := buf.String()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, `"train" -> "eval"`)
	assert.Contains(t, out, `"vis" -> "report"`)
}

type fakeRunner struct {
	mu       sync.Mutex
	started  []string
	fail     map[string]int
	delay    time.Duration
	inFlight int
	maxSeen  int
}

func (f *fakeRunner) Run(ctx context.Context, name string, rc runconfig.RunConfig) (launcher.Result, error) {
	f.mu.Lock()
	f.started = append(f.started, name)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if code, ok := f.fail[name]; ok {
		return launcher.Result{Name: name, ExitCode: code}, &launcher.ExitError{Name: name, Code: code, Err: errors.New("exit")}
	}
	return launcher.Result{Name: name}, nil
}

func TestExecuteSequential(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)
	steps, err := p.Steps(presetResolver)
	require.NoError(t, err)

	runner := &fakeRunner{}
	outcomes, err := Execute(context.Background(), steps, runner, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "eval", "vis", "report"}, runner.started)
	assert.Equal(t, 1, runner.maxSeen)
	for _, o := range outcomes {
		assert.Equal(t, StatusSucceeded, o.Status, o.Name)
	}
}

func TestExecuteParallel(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)
	steps, err := p.Steps(presetResolver)
	require.NoError(t, err)

	runner := &fakeRunner{delay: 50 * time.Millisecond}
	_, err = Execute(context.Background(), steps, runner, 2)
	require.NoError(t, err)
	assert.Equal(t, "train", runner.started[0])
	assert.Equal(t, "report", runner.started[3])
	assert.LessOrEqual(t, runner.maxSeen, 2)
}

func TestExecuteStopsAfterFailure(t *testing.T) {
	p, err := Parse([]byte(samplePlan), "sample.hcl", nil)
	require.NoError(t, err)
	steps, err := p.Steps(presetResolver)
	require.NoError(t, err)

	runner := &fakeRunner{fail: map[string]int{"train": 2}}
	outcomes, err := Execute(context.Background(), steps, runner, 1)
	require.Error(t, err)

	var exitErr *launcher.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)

	assert.Equal(t, []string{"train"}, runner.started)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, 2, outcomes[0].ExitCode)
	for _, o := range outcomes[1:] {
		assert.Equal(t, StatusSkipped, o.Status, o.Name)
	}
}
