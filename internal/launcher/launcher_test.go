// internal/launcher/launcher_test.go
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/mwiater/detrun/internal/runconfig"
)

// TestHelperProcess stands in for the training program. It is only active
// when started by helperLauncher.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch os.Getenv("HELPER_MODE") {
	case "exit":
		fmt.Fprintln(os.Stderr, "training failed")
		os.Exit(3)
	case "sleep":
		fmt.Println("started")
		time.Sleep(30 * time.Second)
	default:
		fmt.Printf("args=%s\n", strings.Join(args, " "))
		fmt.Printf("dataset=%s\n", os.Getenv("DETR_DATASET"))
	}
	os.Exit(0)
}

func helperLauncher(t *testing.T, mode string, stdout, stderr *bytes.Buffer) *Launcher {
	t.Helper()
	return New(Options{
		Python:     os.Args[0],
		PythonArgs: []string{"-test.run=TestHelperProcess", "--"},
		Entrypoint: "main.py",
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"HELPER_MODE":            mode,
			"DETR_DATASET":           "DOTA",
		},
		StopGrace: 2 * time.Second,
		Stdout:    stdout,
		Stderr:    stderr,
	})
}

func TestArgv(t *testing.T) {
	l := New(Options{Python: "python", PythonArgs: []string{"-u"}, Entrypoint: "main.py"})
	rc := runconfig.RunConfig{OutputDir: "./exp/eval", Eval: runconfig.Bool(true)}
	want := []string{"python", "-u", "main.py", "--output_dir", "./exp/eval", "--eval"}
	if got := l.Argv(rc); !reflect.DeepEqual(got, want) {
		t.Fatalf("Argv() = %q, want %q", got, want)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := appconfig.Config{Python: "python3", Env: []string{"CUDA_VISIBLE_DEVICES=1"}, StopGraceSeconds: 4}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig error: %v", err)
	}
	if opts.Python != "python3" || opts.Entrypoint != "main.py" || opts.StopGrace != 4*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Env["CUDA_VISIBLE_DEVICES"] != "1" {
		t.Fatalf("env not carried over: %v", opts.Env)
	}

	if _, err := OptionsFromConfig(appconfig.Config{Env: []string{"broken"}}); err == nil {
		t.Fatal("expected an error for a malformed env entry")
	}
}

func TestEnvironOverrides(t *testing.T) {
	t.Setenv("DETR_DATASET", "xView")
	l := New(Options{Env: map[string]string{"DETR_DATASET": "DOTA"}})
	count := 0
	for _, kv := range l.Environ() {
		if strings.HasPrefix(kv, "DETR_DATASET=") {
			count++
			if kv != "DETR_DATASET=DOTA" {
				t.Fatalf("override not applied: %s", kv)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one DETR_DATASET entry, got %d", count)
	}
}

func TestRunSuccessWritesRunLog(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := helperLauncher(t, "echo", &stdout, &stderr)
	outDir := filepath.Join(t.TempDir(), "exp", "eval")
	rc := runconfig.RunConfig{OutputDir: outDir, BatchSize: runconfig.Int(8), Eval: runconfig.Bool(true)}

	res, err := l.Run(context.Background(), "eval", rc)
	if err != nil {
		t.Fatalf("Run error: %v (stderr: %s)", err, stderr.String())
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	wantArgs := "args=main.py --output_dir " + outDir + " --batch_size 8 --eval"
	if !strings.Contains(stdout.String(), wantArgs) {
		t.Fatalf("expected %q in output, got %q", wantArgs, stdout.String())
	}
	if !strings.Contains(stdout.String(), "dataset=DOTA") {
		t.Fatalf("env was not passed to the child: %q", stdout.String())
	}

	if res.RunLog != filepath.Join(outDir, RunLogName) {
		t.Fatalf("unexpected run log path %q", res.RunLog)
	}
	data, err := os.ReadFile(res.RunLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), wantArgs) || !strings.HasPrefix(string(data), "# ") {
		t.Fatalf("run log missing output or header: %s", data)
	}
}

func TestRunExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := helperLauncher(t, "exit", &stdout, &stderr)

	res, err := l.Run(context.Background(), "train", runconfig.RunConfig{})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 3 || res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d / %d", exitErr.Code, res.ExitCode)
	}
	if !strings.Contains(stderr.String(), "training failed") {
		t.Fatalf("stderr not forwarded: %q", stderr.String())
	}
	if res.RunLog != "" {
		t.Fatalf("no run log expected without output_dir, got %q", res.RunLog)
	}
}

func TestRunCancel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := helperLauncher(t, "sleep", &stdout, &stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Run(ctx, "train", runconfig.RunConfig{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancelled run took too long to stop: %v", elapsed)
	}
}

func TestRunStartFailure(t *testing.T) {
	l := New(Options{Python: filepath.Join(t.TempDir(), "no-such-python"), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if _, err := l.Run(context.Background(), "train", runconfig.RunConfig{}); err == nil {
		t.Fatal("expected a start error")
	}
}

func TestRunLogPathRelativeToWorkdir(t *testing.T) {
	l := New(Options{Workdir: "/srv/detr"})
	got := l.RunLogPath(runconfig.RunConfig{OutputDir: "exp/a"})
	if got != filepath.Join("/srv/detr", "exp/a", RunLogName) {
		t.Fatalf("unexpected run log path %q", got)
	}
	l = New(Options{NoRunLog: true})
	if got := l.RunLogPath(runconfig.RunConfig{OutputDir: "exp/a"}); got != "" {
		t.Fatalf("run log should be disabled, got %q", got)
	}
}
