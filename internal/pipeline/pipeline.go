// Package pipeline runs the scheduling stages in order over one graph.
//
// Stages share a Context that each stage reads and extends. The default
// pipeline validates the input, checks demands against the target,
// schedules and lowers barriers (retrying with fewer barrier indices when
// lowering fails), generates control edges and finalizes the schedule.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/bsched/internal/barrier"
	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
)

// Context carries one compilation through the stages.
type Context struct {
	Graph  ir.Graph
	Target ir.Target
	Logger *slog.Logger

	Deps         *depgraph.Graph
	BarrierCount int
	Attempts     int
	Ops          []ir.ScheduledOp
	Table        *barrier.Table
	Stats        barrier.Stats
	Order        []ir.TaskID
	ControlEdges []ir.ControlEdge
	Schedule     *ir.Schedule
}

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, c *Context) error
}

type stageFunc struct {
	name string
	fn   func(context.Context, *Context) error
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, c *Context) error { return s.fn(ctx, c) }

// NewStage wraps fn as a Stage.
func NewStage(name string, fn func(context.Context, *Context) error) Stage {
	return stageFunc{name: name, fn: fn}
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	stages []Stage
}

// Builder assembles a Pipeline.
type Builder struct {
	stages []Stage
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// Then appends a stage.
func (b *Builder) Then(s Stage) *Builder {
	b.stages = append(b.stages, s)
	return b
}

// Build returns the pipeline. The builder can keep being used.
func (b *Builder) Build() *Pipeline {
	stages := make([]Stage, len(b.stages))
	copy(stages, b.stages)
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage in order and stops at the first error.
func (p *Pipeline) Run(ctx context.Context, c *Context) error {
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		c.Logger.Debug("stage starting", "stage", s.Name(), "graph", c.Graph.Name)
		if err := s.Run(ctx, c); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Stage names of the default pipeline.
const (
	StageValidate        = "validate"
	StageFeasibility     = "feasibility"
	StageBarrierSchedule = "barrier-schedule"
	StageControlEdges    = "control-edges"
	StageFinalize        = "finalize"
)

// Default returns the standard scheduling pipeline.
func Default() *Pipeline {
	return NewBuilder().
		Then(NewStage(StageValidate, validate)).
		Then(NewStage(StageFeasibility, feasibility)).
		Then(NewStage(StageBarrierSchedule, scheduleBarriers)).
		Then(NewStage(StageControlEdges, controlEdges)).
		Then(NewStage(StageFinalize, finalize)).
		Build()
}

// Check returns a pipeline that only validates the graph and the demands
// against the target. It produces no schedule.
func Check() *Pipeline {
	return NewBuilder().
		Then(NewStage(StageValidate, validate)).
		Then(NewStage(StageFeasibility, feasibility)).
		Build()
}
