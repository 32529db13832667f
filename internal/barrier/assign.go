package barrier

import (
	"slices"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
)

// transition follows the barrier currently open on one resource index.
type transition struct {
	time    int
	current *entry
}

// Assign builds the virtual barriers for ops, which must be in emission
// order (non-decreasing time).
//
// On each index a new barrier opens whenever the time changes; the barrier
// it replaces is closed. Closing sets the consumers to the accelerator
// successors of the producers, including the targets of extra.
func Assign(g *depgraph.Graph, ops []ir.ScheduledOp, extra ...ir.SyncEdge) (*Table, error) {
	t := newTable()
	transitions := make(map[int]*transition)
	synced := make(map[ir.TaskID][]ir.TaskID, len(extra))
	for _, e := range extra {
		synced[e.From] = append(synced[e.From], e.To)
	}

	for _, op := range ops {
		if _, dup := t.timeOf[op.Task]; dup {
			return nil, ir.NewTaskError(ir.ErrCodeInternal, op.Task, "task scheduled twice")
		}
		if _, ok := g.Index(op.Task); !ok {
			return nil, ir.NewTaskError(ir.ErrCodeInternal, op.Task, "scheduled task is not in the graph")
		}
		t.timeOf[op.Task] = op.Time
		t.slots[op.Task] = op.Slots
		if op.BarrierIndex == ir.NoBarrier {
			continue
		}

		tr, ok := transitions[op.BarrierIndex]
		if !ok {
			tr = &transition{time: op.Time}
			transitions[op.BarrierIndex] = tr
		}
		if op.Time < tr.time {
			return nil, ir.NewTaskError(ir.ErrCodeInternal, op.Task,
				"op at time %d after time %d on index %d", op.Time, tr.time, op.BarrierIndex)
		}
		if tr.current == nil || tr.time != op.Time {
			if tr.current != nil {
				t.close(g, synced, tr.current)
			}
			tr.current = t.open(op.BarrierIndex)
			tr.time = op.Time
		}
		t.addProducer(tr.current, op.Task)
	}

	indices := make([]int, 0, len(transitions))
	for index := range transitions {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	for _, index := range indices {
		t.close(g, synced, transitions[index].current)
	}

	for _, e := range extra {
		from, fok := t.timeOf[e.From]
		to, tok := t.timeOf[e.To]
		if !fok || !tok || from >= to {
			return nil, ir.NewTaskError(ir.ErrCodeInternal, e.To,
				"sync edge from task %d is not ordered in time", e.From)
		}
	}

	if err := t.checkProducers(g); err != nil {
		return nil, err
	}
	return t, nil
}

// close freezes e and attaches its consumers.
func (t *Table) close(g *depgraph.Graph, synced map[ir.TaskID][]ir.TaskID, e *entry) {
	for _, p := range e.producers {
		for _, s := range g.Succs(g.MustIndex(p)) {
			if g.Task(s).Accelerator {
				t.addConsumer(e, g.ID(s))
			}
		}
		for _, c := range synced[p] {
			t.addConsumer(e, c)
		}
	}
}

// checkProducers verifies every accelerator predecessor of an accelerator
// task signals some barrier.
func (t *Table) checkProducers(g *depgraph.Graph) error {
	var err error
	g.Edges(func(from, to int) {
		if err != nil || !g.Task(from).Accelerator || !g.Task(to).Accelerator {
			return
		}
		if len(t.update[g.ID(from)]) == 0 {
			err = ir.NewTaskError(ir.ErrCodeInternal, g.ID(from),
				"predecessor of task %d was never registered as a barrier producer", g.ID(to))
		}
	})
	return err
}
