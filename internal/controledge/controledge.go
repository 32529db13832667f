// Package controledge emits explicit ordering edges for what barriers do
// not cover: host tasks and buffers in memory spaces the barrier hardware
// cannot see.
package controledge

import (
	"cmp"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
)

// Generate returns the dependency, time-slot and memory-overlap edges for
// one schedule. When several generators produce the same (From, To) pair
// the first reason wins in that order. The result is sorted by (From, To).
func Generate(g *depgraph.Graph, ops []ir.ScheduledOp, spaces []string, logger *slog.Logger) []ir.ControlEdge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	seen := make(map[[2]ir.TaskID]bool)
	var out []ir.ControlEdge
	for _, batch := range [][]ir.ControlEdge{
		Dependencies(g),
		TimeSlot(g, ops),
		Overlap(g, ops, spaces, logger),
	} {
		for _, e := range batch {
			key := [2]ir.TaskID{e.From, e.To}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	sortEdges(out)
	if out == nil {
		out = []ir.ControlEdge{}
	}
	return out
}

// Dependencies turns every original edge with a host endpoint into a
// control edge.
func Dependencies(g *depgraph.Graph) []ir.ControlEdge {
	var out []ir.ControlEdge
	g.Edges(func(from, to int) {
		if g.Task(from).Accelerator && g.Task(to).Accelerator {
			return
		}
		out = append(out, ir.ControlEdge{From: g.ID(from), To: g.ID(to), Reason: ir.EdgeDependency})
	})
	return out
}

// TimeSlot links every host op at one host time to every host op at the
// next host time.
func TimeSlot(g *depgraph.Graph, ops []ir.ScheduledOp) []ir.ControlEdge {
	byTime := make(map[int][]ir.TaskID)
	for _, op := range ops {
		i, ok := g.Index(op.Task)
		if !ok || g.Task(i).Accelerator {
			continue
		}
		byTime[op.Time] = append(byTime[op.Time], op.Task)
	}
	times := make([]int, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	slices.Sort(times)

	var out []ir.ControlEdge
	for k := 0; k+1 < len(times); k++ {
		from := byTime[times[k]]
		to := byTime[times[k+1]]
		slices.Sort(from)
		slices.Sort(to)
		for _, a := range from {
			for _, b := range to {
				out = append(out, ir.ControlEdge{From: a, To: b, Reason: ir.EdgeTimeSlot})
			}
		}
	}
	return out
}

type interval struct {
	start, end int64
	task       ir.TaskID
	time       int
}

// Overlap sweeps the buffers of every space in spaces and orders tasks
// whose address ranges overlap, earlier time first. Overlaps between tasks
// at the same time cannot be ordered and are logged as hazards.
func Overlap(g *depgraph.Graph, ops []ir.ScheduledOp, spaces []string, logger *slog.Logger) []ir.ControlEdge {
	timeOf := make(map[ir.TaskID]int, len(ops))
	for _, op := range ops {
		timeOf[op.Task] = op.Time
	}

	var out []ir.ControlEdge
	for _, space := range spaces {
		var intervals []interval
		for _, op := range ops {
			i, ok := g.Index(op.Task)
			if !ok {
				continue
			}
			for _, b := range g.Task(i).Buffers {
				if b.Space == space && b.Length > 0 {
					intervals = append(intervals, interval{start: b.Offset, end: b.End(), task: op.Task, time: op.Time})
				}
			}
		}
		slices.SortFunc(intervals, func(a, b interval) int {
			if c := cmp.Compare(a.start, b.start); c != 0 {
				return c
			}
			return cmp.Compare(a.task, b.task)
		})

		seen := make(map[[2]ir.TaskID]bool)
		var active []interval
		for _, cur := range intervals {
			active = slices.DeleteFunc(active, func(a interval) bool { return a.end < cur.start })
			for _, a := range active {
				if a.task == cur.task {
					continue
				}
				from, to := a, cur
				if from.time > to.time {
					from, to = to, from
				}
				if from.time == to.time {
					logger.Warn("memory hazard between tasks at the same time",
						"space", space,
						"task_a", a.task,
						"task_b", cur.task,
						"time", cur.time)
					continue
				}
				key := [2]ir.TaskID{from.task, to.task}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, ir.ControlEdge{From: from.task, To: to.task, Reason: ir.EdgeMemoryOverlap, Space: space})
			}
			active = append(active, cur)
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []ir.ControlEdge) {
	slices.SortFunc(edges, func(a, b ir.ControlEdge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		if c := cmp.Compare(a.To, b.To); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Reason, b.Reason); c != 0 {
			return c
		}
		return cmp.Compare(a.Space, b.Space)
	})
}
