package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/pipeline"
)

// Harness is the scenario execution engine.
// Every scenario compiles in its own session, so scenarios never share
// scheduler state.
type Harness struct {
	logger *slog.Logger
	opts   []pipeline.Option
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to each compilation.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// WithPipeline replaces the default stage pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(h *Harness) {
		h.opts = append(h.opts, pipeline.WithPipeline(p))
	}
}

// New creates a harness. Logs are discarded unless WithLogger is given.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run compiles the scenario graph and evaluates its assertions.
//
// The returned error covers problems with the scenario itself (missing graph
// file, unknown preset). A compilation failure is part of the result: it
// passes an infeasible assertion and fails every other scenario.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	g, err := resolveGraph(scenario)
	if err != nil {
		return nil, err
	}
	target, err := scenario.Target.Resolve()
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	opts := append([]pipeline.Option{pipeline.WithLogger(h.logger)}, h.opts...)
	sched, compileErr := pipeline.NewSession(opts...).Compile(ctx, g, target)

	result := NewResult(scenario.Name)
	result.Schedule = sched
	result.CompileErr = compileErr

	if compileErr != nil && !scenario.ExpectsFailure() {
		result.AddError(fmt.Sprintf("compilation failed: %v", compileErr))
		return result, nil
	}

	for i, a := range scenario.Assertions {
		if err := evaluate(a, sched, compileErr); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors))
	return result, nil
}

// RunAll executes scenarios in order. It stops at the first scenario error;
// assertion failures are reported in the results.
func (h *Harness) RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, err := h.Run(ctx, sc)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// opAt returns the op of task.
func opAt(s *ir.Schedule, task ir.TaskID) (ir.ScheduledOp, bool) {
	for _, op := range s.Ops {
		if op.Task == task {
			return op, true
		}
	}
	return ir.ScheduledOp{}, false
}

// syncOf returns the wait/update attachment of task.
func syncOf(s *ir.Schedule, task ir.TaskID) (ir.TaskSync, bool) {
	for _, ts := range s.Tasks {
		if ts.Task == task {
			return ts, true
		}
	}
	return ir.TaskSync{}, false
}
