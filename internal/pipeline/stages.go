package pipeline

import (
	"context"
	"log/slog"

	"github.com/roach88/bsched/internal/barrier"
	"github.com/roach88/bsched/internal/config"
	"github.com/roach88/bsched/internal/controledge"
	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/resource"
	"github.com/roach88/bsched/internal/scheduler"
)

func validate(_ context.Context, c *Context) error {
	if err := config.Validate(c.Target); err != nil {
		return err
	}
	deps, err := depgraph.New(c.Graph)
	if err != nil {
		return err
	}
	c.Deps = deps
	return nil
}

func feasibility(_ context.Context, c *Context) error {
	state := resource.NewState(c.Target, c.Target.BarrierCount)
	for i := 0; i < c.Deps.Len(); i++ {
		task := c.Deps.Task(i)
		if err := state.CheckFeasible(task.ID, resource.DemandOf(task)); err != nil {
			return err
		}
	}
	return nil
}

func scheduleBarriers(_ context.Context, c *Context) error {
	n, err := retryLowering(c.Target.BarrierCount, c.Logger, func(n int) error {
		c.Attempts++
		return attempt(c, n)
	})
	if err != nil {
		return err
	}
	c.BarrierCount = n
	return nil
}

// retryLowering calls attempt with limit, limit-1, ..., 1 barrier indices until
// one succeeds. Only lowering failures are retried.
func retryLowering(limit int, logger *slog.Logger, attempt func(n int) error) (int, error) {
	var last error
	for n := limit; n >= 1; n-- {
		err := attempt(n)
		if err == nil {
			return n, nil
		}
		if ir.CodeOf(err) != ir.ErrCodeBarrierLowering {
			return n, err
		}
		logger.Warn("barrier lowering failed, retrying with fewer barriers",
			"barrier_count", n,
			"error", err)
		last = err
	}
	e := ir.NewError(ir.ErrCodeBarrierLowering,
		"no barrier count in 1..%d lowers onto the physical pool", limit)
	if last != nil {
		e.Details = map[string]string{"last_error": last.Error()}
	}
	return 0, e
}

// attempt runs scheduling through lowering with n barrier indices and
// records the result in c only on success.
func attempt(c *Context, n int) error {
	s, err := scheduler.New(c.Deps, c.Target, n, scheduler.WithLogger(c.Logger))
	if err != nil {
		return err
	}
	ops, err := s.Run()
	if err != nil {
		return err
	}

	synced := s.SyncEdges()
	table, err := barrier.Assign(c.Deps, ops, synced...)
	if err != nil {
		return err
	}
	virtual := table.Len()
	stats, err := barrier.Eliminate(table, c.Target.SlotsPerBarrier)
	if err != nil {
		return err
	}
	if err := barrier.VerifyCoverage(c.Deps, table); err != nil {
		return err
	}
	order := barrier.LinearOrder(ops)
	if err := barrier.Lower(table, order, c.Target.BarrierCount); err != nil {
		return err
	}

	c.Logger.Debug("barriers eliminated",
		"barrier_count", n,
		"sync_edges", len(synced),
		"virtual", virtual,
		"remaining", table.Len(),
		"passes", stats.Passes,
		"producers_pruned", stats.ProducersPruned,
		"consumers_pruned", stats.ConsumersPruned,
		"merged", stats.Merged,
		"dropped", stats.Dropped)

	c.Ops = ops
	c.Table = table
	c.Stats = stats
	c.Order = order
	return nil
}

func controlEdges(_ context.Context, c *Context) error {
	c.ControlEdges = controledge.Generate(c.Deps, c.Ops, c.Target.ControlEdgeSpaces, c.Logger)
	return nil
}

func finalize(_ context.Context, c *Context) error {
	s := &ir.Schedule{
		Graph:        c.Graph.Name,
		Target:       c.Target,
		BarrierCount: c.BarrierCount,
		Ops:          c.Ops,
		Barriers:     c.Table.Barriers(),
		Tasks:        c.Table.Sync(c.Order),
		Order:        c.Order,
		ControlEdges: c.ControlEdges,
	}
	if s.Ops == nil {
		s.Ops = []ir.ScheduledOp{}
	}
	if s.Order == nil {
		s.Order = []ir.TaskID{}
	}
	hash, err := ir.ScheduleHash(s)
	if err != nil {
		return ir.NewError(ir.ErrCodeInternal, "hash schedule: %v", err)
	}
	s.Hash = hash
	c.Schedule = s
	return nil
}
