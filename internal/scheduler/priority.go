package scheduler

import (
	"cmp"
	"slices"

	"github.com/roach88/bsched/internal/depgraph"
)

// AssignPriorities returns the rank of every task by dense index. Lower
// ranks are picked first among ready tasks.
//
// A task's level is its Kahn level, except that a source task takes the
// deepest level of its consumers so it issues close to its first use. An
// upstream Priority replaces the computed level. Ranks number the tasks
// densely by (level, TaskID).
func AssignPriorities(g *depgraph.Graph) []int {
	levels := g.Levels()
	adjusted := make([]int, len(levels))
	for i := range levels {
		adjusted[i] = levels[i]
		if len(g.Preds(i)) == 0 {
			for _, s := range g.Succs(i) {
				adjusted[i] = max(adjusted[i], levels[s])
			}
		}
		if p := g.Task(i).Priority; p != nil {
			adjusted[i] = *p
		}
	}

	order := make([]int, g.Len())
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(adjusted[a], adjusted[b]); c != 0 {
			return c
		}
		return cmp.Compare(g.ID(a), g.ID(b))
	})

	rank := make([]int, g.Len())
	for r, i := range order {
		rank[i] = r
	}
	return rank
}
