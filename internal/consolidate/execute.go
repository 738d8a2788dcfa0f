package consolidate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rflorenc/pan-deduper/internal/dedupe"
	"github.com/rflorenc/pan-deduper/internal/metrics"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// Step outcomes.
const (
	StatusOK      = "ok"
	StatusExists  = "exists"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StepResult records what happened to one step.
type StepResult struct {
	Phase  string `json:"phase"`
	Step   Step   `json:"step"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	err    error
}

// Err returns the typed error of a failed step.
func (r StepResult) Err() error { return r.err }

// Report is the outcome of executing a plan.
type Report struct {
	Results []StepResult `json:"results"`
	// Halted is set when the operator declined a checkpoint.
	Halted   bool   `json:"halted,omitempty"`
	HaltedAt string `json:"halted_at,omitempty"`
}

// Failed returns the failed steps.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many steps finished with status.
func (r *Report) Count(status string) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Summary is a one-line tally of the report.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d succeeded, %d already present, %d failed, %d skipped",
		r.Count(StatusOK), r.Count(StatusExists), r.Count(StatusFailed), r.Count(StatusSkipped))
}

// Executor runs a Plan against a Pusher.
type Executor struct {
	Pusher platform.Pusher
	// Source, when set, is used to compare an object that already exists at
	// the destination with the one being created.
	Source         platform.Source
	MaxConcurrency int
	// GuardDeletes skips deleting an object from its units when creating it
	// in any destination failed.
	GuardDeletes bool
	// Confirm answers phase checkpoints. Nil confirms everything.
	Confirm  func(question string) bool
	Log      *zap.Logger
	Progress func(string)
	Metrics  *metrics.Recorder
}

// Execute runs the phases in order. A failed step is recorded and does not
// stop the run. Execute returns early with ctx.Err() when the context is
// cancelled between batches.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Report, error) {
	logger := e.Progress
	if logger == nil {
		logger = func(string) {}
	}
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	limit := e.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	report := &Report{}
	failedCreates := map[string]bool{}

	for _, phase := range plan.Phases {
		if ctx.Err() != nil {
			logger("Consolidation cancelled by user")
			return report, ctx.Err()
		}
		if phase.Checkpoint != "" && e.Confirm != nil && !e.Confirm(phase.Checkpoint) {
			logger(fmt.Sprintf("=== Stopped before %s ===", phase.Name))
			report.Halted = true
			report.HaltedAt = phase.Name
			return report, nil
		}
		if phase.Refresh != nil {
			batches, err := phase.Refresh(ctx)
			if err != nil {
				return report, fmt.Errorf("refreshing %s: %w", phase.Name, err)
			}
			phase.Batches = batches
		}
		logger(fmt.Sprintf("=== %s ===", phase.Name))

		for _, batch := range phase.Batches {
			if ctx.Err() != nil {
				logger("Consolidation cancelled by user")
				return report, ctx.Err()
			}
			results := make([]StepResult, len(batch))
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(limit)
			for i, step := range batch {
				i, step := i, step
				g.Go(func() error {
					res := e.run(gctx, phase.Name, step, failedCreates)
					mu.Lock()
					results[i] = res
					mu.Unlock()
					e.log(logger, log, res)
					return nil
				})
			}
			_ = g.Wait()

			for _, res := range results {
				if res.Step.Op == OpCreate && res.Status == StatusFailed {
					failedCreates[string(res.Step.Kind)+"/"+res.Step.Name] = true
				}
			}
			report.Results = append(report.Results, results...)
		}
	}

	logger(fmt.Sprintf("Consolidation complete: %s", report.Summary()))
	return report, nil
}

// failedCreates is only read while a batch runs; it is written after the
// batch joins.
func (e *Executor) run(ctx context.Context, phase string, step Step, failedCreates map[string]bool) StepResult {
	res := StepResult{Phase: phase, Step: step}

	switch step.Op {
	case OpCreate:
		r := e.Pusher.CreateObject(ctx, *step.Object, step.Unit)
		switch {
		case r.OK:
			res.Status = StatusOK
		case r.AlreadyExists && e.identicalExists(ctx, step):
			res.Status = StatusExists
		default:
			if r.AlreadyExists && r.Message == "" {
				r.Message = "exists with a different definition"
			}
			res.Status = StatusFailed
			res.err = r.Err(string(step.Op), step.Kind, step.Name, step.Unit)
		}
	case OpDelete:
		if e.GuardDeletes && failedCreates[string(step.Kind)+"/"+step.Name] {
			res.Status = StatusSkipped
			res.Error = "create failed"
			break
		}
		r := e.Pusher.DeleteObject(ctx, step.Kind, step.Name, step.Unit)
		if r.OK {
			res.Status = StatusOK
		} else {
			res.Status = StatusFailed
			res.err = r.Err(string(step.Op), step.Kind, step.Name, step.Unit)
		}
	default:
		res.Status = StatusFailed
		res.err = fmt.Errorf("unknown operation %q", step.Op)
	}

	if res.err != nil {
		res.Error = res.err.Error()
	}
	if res.Status != StatusSkipped {
		e.Metrics.ObserveStep(string(step.Op), string(step.Kind), res.Status != StatusFailed)
	}
	return res
}

func (e *Executor) identicalExists(ctx context.Context, step Step) bool {
	if e.Source == nil {
		return false
	}
	existing, err := e.Source.FetchObject(ctx, step.Kind, step.Unit, step.Name)
	if err != nil || existing == nil {
		return false
	}
	return dedupe.Equal(*existing, *step.Object)
}

func (e *Executor) log(logger func(string), log *zap.Logger, res StepResult) {
	s := res.Step
	label := fmt.Sprintf("%s '%s' in %s", s.Kind, s.Name, s.Unit)
	switch res.Status {
	case StatusOK:
		if s.Op == OpCreate {
			logger("  CREATED: " + label)
		} else {
			logger("  DELETED: " + label)
		}
	case StatusExists:
		logger("  SKIP (exists): " + label)
	case StatusSkipped:
		logger(fmt.Sprintf("  SKIP (%s): %s", res.Error, label))
	case StatusFailed:
		logger(fmt.Sprintf("  FAIL: %s: %s", label, res.Error))
		log.Warn("consolidation step failed",
			zap.String("op", string(s.Op)),
			zap.String("kind", string(s.Kind)),
			zap.String("name", s.Name),
			zap.String("unit", s.Unit),
			zap.Error(res.err))
	}
}
