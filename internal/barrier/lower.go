package barrier

import (
	"cmp"
	"slices"

	"github.com/roach88/bsched/internal/ir"
)

// LinearOrder returns the tasks of ops sorted by (time, TaskID).
func LinearOrder(ops []ir.ScheduledOp) []ir.TaskID {
	sorted := slices.Clone(ops)
	slices.SortFunc(sorted, func(a, b ir.ScheduledOp) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Task, b.Task)
	})
	order := make([]ir.TaskID, len(sorted))
	for i, op := range sorted {
		order[i] = op.Task
	}
	return order
}

// Lower assigns physical ids from a pool of size pool by simulating issue
// over order one time step at a time. Within a step the waits of every task
// are handled before any update: a barrier gives its physical id back once
// its last consumer has issued, and takes the lowest free id when its first
// producer issues. Running out of physical ids is a BARRIER_LOWERING error
// and leaves t unchanged.
func Lower(t *Table, order []ir.TaskID, pool int) error {
	remaining := make(map[int]int, len(t.entries))
	for id, e := range t.entries {
		remaining[id] = len(e.consumers)
	}
	physical := make(map[int]int, len(t.entries))
	inUse := make([]bool, pool)

	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && t.timeOf[order[end]] == t.timeOf[order[start]] {
			end++
		}
		step := order[start:end]
		start = end

		for _, task := range step {
			for _, id := range t.wait[task] {
				p, ok := physical[id]
				if !ok {
					return ir.NewTaskError(ir.ErrCodeInternal, task,
						"waits on barrier %d before any producer issued", id)
				}
				remaining[id]--
				if remaining[id] == 0 {
					inUse[p] = false
				}
			}
		}
		for _, task := range step {
			for _, id := range t.update[task] {
				if _, ok := physical[id]; ok {
					continue
				}
				p := slices.Index(inUse, false)
				if p < 0 {
					e := ir.NewTaskError(ir.ErrCodeBarrierLowering, task,
						"no free physical barrier among %d", pool)
					e.Barrier = id
					return e
				}
				inUse[p] = true
				physical[id] = p
			}
		}
	}

	for _, id := range t.ids() {
		if _, ok := physical[id]; !ok {
			return ir.NewError(ir.ErrCodeInternal, "barrier %d was never issued", id)
		}
	}
	for id, p := range physical {
		t.entries[id].physical = p
	}
	return nil
}
