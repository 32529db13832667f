package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bsched/internal/ir"
)

// ErrSessionBusy is returned when a Session is entered while a compilation
// is already running on it.
var ErrSessionBusy = errors.New("pipeline: session is already compiling")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithPipeline replaces the default pipeline.
func WithPipeline(p *Pipeline) Option {
	return func(s *Session) {
		s.pipeline = p
	}
}

// Session owns one compilation at a time. It is not reentrant: a second
// Compile while one is running fails with ErrSessionBusy.
type Session struct {
	pipeline *Pipeline
	logger   *slog.Logger
	running  atomic.Bool
}

// NewSession creates a session with the default pipeline.
func NewSession(opts ...Option) *Session {
	s := &Session{
		pipeline: Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile schedules g on target. On error no schedule is returned.
func (s *Session) Compile(ctx context.Context, g ir.Graph, target ir.Target) (*ir.Schedule, error) {
	c, err := s.Run(ctx, g, target)
	if err != nil {
		return nil, err
	}
	return c.Schedule, nil
}

// Run executes the pipeline and returns the full stage context.
func (s *Session) Run(ctx context.Context, g ir.Graph, target ir.Target) (*Context, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	defer s.running.Store(false)

	c := &Context{Graph: g, Target: target, Logger: s.logger}
	if err := s.pipeline.Run(ctx, c); err != nil {
		s.logger.Error("compilation failed",
			"graph", g.Name,
			"target", target.Name,
			"code", string(ir.CodeOf(err)),
			"error", err)
		return nil, err
	}

	if c.Schedule != nil {
		s.logger.Info("schedule compiled",
			"graph", g.Name,
			"target", target.Name,
			"tasks", len(c.Schedule.Ops),
			"barriers", len(c.Schedule.Barriers),
			"barrier_count", c.Schedule.BarrierCount,
			"attempts", c.Attempts,
			"control_edges", len(c.Schedule.ControlEdges),
			"hash", c.Schedule.Hash)
	}
	return c, nil
}

// Job is one independent compilation for CompileAll.
type Job struct {
	Graph  ir.Graph
	Target ir.Target
}

// CompileAll compiles independent jobs in parallel, one session per job.
// Results are in job order. The first error cancels the remaining jobs.
func CompileAll(ctx context.Context, jobs []Job, opts ...Option) ([]*ir.Schedule, error) {
	results := make([]*ir.Schedule, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			s, err := NewSession(opts...).Compile(gctx, job.Graph, job.Target)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
