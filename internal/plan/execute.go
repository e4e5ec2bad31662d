// internal/plan/execute.go
package plan

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dominikbraun/graph/draw"
	"github.com/mwiater/detrun/internal/launcher"
	"github.com/mwiater/detrun/internal/logging"
	"github.com/mwiater/detrun/internal/runconfig"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Runner starts one run and waits for it. *launcher.Launcher is the production implementation.
type Runner interface {
	Run(ctx context.Context, name string, rc runconfig.RunConfig) (launcher.Result, error)
}

// Status is the outcome of a step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome records what happened to one step.
type Outcome struct {
	Name     string          `json:"name"`
	Status   Status          `json:"status"`
	ExitCode int             `json:"exitCode"`
	Duration time.Duration   `json:"duration"`
	Result   launcher.Result `json:"-"`
	Err      error           `json:"-"`
}

// Execute runs steps (already in dependency order) with at most parallel runs
// in flight. A step starts once all of its dependencies succeeded. The first
// failure stops steps that have not started yet; runs already in flight keep
// going until they exit or ctx is cancelled. Outcomes are returned in step order.
func Execute(ctx context.Context, steps []Step, runner Runner, parallel int) ([]Outcome, error) {
	if parallel < 1 {
		parallel = 1
	}

	done := make(map[string]chan struct{}, len(steps))
	for _, s := range steps {
		done[s.Name] = make(chan struct{})
	}

	outcomes := make([]Outcome, len(steps))
	for i, s := range steps {
		outcomes[i] = Outcome{Name: s.Name, Status: StatusSkipped}
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, s := range steps {
		i, s := i, s
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, dep := range s.DependsOn {
				ch, ok := done[dep]
				if !ok {
					return errors.Errorf("run %q depends on %q, which is not part of this execution", s.Name, dep)
				}
				select {
				case <-ch:
				case <-gctx.Done():
					logging.LogEvent("[PLAN] skip run=%s: %v", s.Name, context.Cause(gctx))
					return nil
				}
			}
			if gctx.Err() != nil {
				return nil
			}

			logging.LogEvent("[PLAN] start run=%s", s.Name)
			res, err := runner.Run(ctx, s.Name, s.Config)

			mu.Lock()
			outcomes[i].Result = res
			outcomes[i].ExitCode = res.ExitCode
			outcomes[i].Duration = res.Duration
			if err != nil {
				outcomes[i].Status = StatusFailed
				outcomes[i].Err = err
			} else {
				outcomes[i].Status = StatusSucceeded
			}
			mu.Unlock()

			if err != nil {
				return errors.Wrapf(err, "run %q", s.Name)
			}
			close(done[s.Name])
			return nil
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), "plan cancelled")
	}
	return outcomes, err
}

// WriteDOT writes the dependency graph in Graphviz DOT format.
func (p *Plan) WriteDOT(w io.Writer) error {
	return errors.Wrap(draw.DOT(p.graph, w), "render graph")
}
