// internal/launcher/launcher.go
// Package launcher starts the external training program for a run
// configuration and waits for it to finish.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/runconfig"
)

// RunLogName is the file, inside a run's output directory, that receives a
// copy of the training program's output.
const RunLogName = "launch.log"

// Options controls how the training program is started.
type Options struct {
	Python     string
	PythonArgs []string
	Entrypoint string
	Workdir    string
	Env        map[string]string
	StopGrace  time.Duration
	Stdout     io.Writer
	Stderr     io.Writer
	// NoRunLog disables the copy of the output into <output_dir>/launch.log.
	NoRunLog bool
}

// OptionsFromConfig derives launcher options from the launcher configuration.
func OptionsFromConfig(cfg appconfig.Config) (Options, error) {
	env, err := cfg.EnvMap()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Python:     cfg.PythonPath(),
		PythonArgs: append([]string(nil), cfg.PythonArgs...),
		Entrypoint: cfg.EntrypointPath(),
		Workdir:    cfg.Workdir,
		Env:        env,
		StopGrace:  cfg.StopGrace(),
	}, nil
}

// Launcher runs one training program invocation at a time per call to Run.
// A Launcher is safe for concurrent use.
type Launcher struct {
	opts Options
}

// New returns a Launcher with the given options.
func New(opts Options) *Launcher {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Launcher{opts: opts}
}

// WithOutput returns a copy of l that writes the program's output to stdout
// and stderr.
func (l *Launcher) WithOutput(stdout, stderr io.Writer) *Launcher {
	opts := l.opts
	opts.Stdout, opts.Stderr = stdout, stderr
	return New(opts)
}

// Result describes a finished run.
type Result struct {
	Name     string        `json:"name"`
	Argv     []string      `json:"argv"`
	ExitCode int           `json:"exitCode"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	RunLog   string        `json:"runLog,omitempty"`
}

// ExitError reports that the training program exited with a non-zero code.
type ExitError struct {
	Name string
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("run %s exited with code %d", e.Name, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Argv returns the full command line for rc: interpreter, interpreter
// arguments, entry point, then the rendered run configuration.
func (l *Launcher) Argv(rc runconfig.RunConfig) []string {
	argv := []string{l.opts.Python}
	argv = append(argv, l.opts.PythonArgs...)
	if l.opts.Entrypoint != "" {
		argv = append(argv, l.opts.Entrypoint)
	}
	return append(argv, rc.Args()...)
}

// Environ returns the child environment: the current process environment
// with the configured variables added or replaced.
func (l *Launcher) Environ() []string {
	env := os.Environ()
	if len(l.opts.Env) == 0 {
		return env
	}
	keys := make([]string, 0, len(l.opts.Env))
	for k := range l.opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filtered := env[:0:0]
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := l.opts.Env[key]; !overridden {
			filtered = append(filtered, kv)
		}
	}
	for _, k := range keys {
		filtered = append(filtered, k+"="+l.opts.Env[k])
	}
	return filtered
}

// Command builds the exec.Cmd for rc without starting it. Cancelling ctx
// interrupts the program and kills it if it has not exited after StopGrace.
func (l *Launcher) Command(ctx context.Context, rc runconfig.RunConfig) *exec.Cmd {
	argv := l.Argv(rc)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.opts.Workdir
	cmd.Env = l.Environ()
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	if l.opts.StopGrace > 0 {
		cmd.WaitDelay = l.opts.StopGrace
	}
	return cmd
}

// RunLogPath returns where the copy of the program output for rc is written,
// or "" when rc has no output directory.
func (l *Launcher) RunLogPath(rc runconfig.RunConfig) string {
	if rc.OutputDir == "" || l.opts.NoRunLog {
		return ""
	}
	dir := rc.OutputDir
	if !filepath.IsAbs(dir) && l.opts.Workdir != "" {
		dir = filepath.Join(l.opts.Workdir, dir)
	}
	return filepath.Join(dir, RunLogName)
}

// Run starts the training program for rc, streams its output and waits for
// it to exit. A non-zero exit is returned as *ExitError.
func (l *Launcher) Run(ctx context.Context, name string, rc runconfig.RunConfig) (Result, error) {
	cmd := l.Command(ctx, rc)
	result := Result{Name: name, Argv: cmd.Args, ExitCode: -1, RunLog: l.RunLogPath(rc)}

	stdout, stderr := l.opts.Stdout, l.opts.Stderr
	if result.RunLog != "" {
		runLog, err := openRunLog(result.RunLog, cmd.Args)
		if err != nil {
			return result, err
		}
		defer runLog.Close()
		stdout = io.MultiWriter(stdout, runLog)
		stderr = io.MultiWriter(stderr, runLog)
	}
	var mu sync.Mutex
	cmd.Stdout = &lockedWriter{mu: &mu, w: stdout}
	cmd.Stderr = &lockedWriter{mu: &mu, w: stderr}

	logging.LogLaunch(name, cmd.Args)
	result.Started = time.Now()
	if err := cmd.Start(); err != nil {
		logging.LogEvent("run %s failed to start: %v", name, err)
		return result, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	waitErr := cmd.Wait()
	result.Duration = time.Since(result.Started)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	logging.LogExit(name, result.ExitCode, result.Duration, waitErr)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("run %s cancelled: %w", name, ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return result, &ExitError{Name: name, Code: result.ExitCode, Err: waitErr}
		}
		return result, fmt.Errorf("wait for run %s: %w", name, waitErr)
	}
	return result, nil
}

func openRunLog(path string, argv []string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	header := fmt.Sprintf("# %s %s\n", time.Now().Format(time.RFC3339), runconfig.QuoteArgs(argv))
	if _, err := io.WriteString(f, header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write run log: %w", err)
	}
	return f, nil
}

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
