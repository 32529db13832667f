package depgraph

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/bsched/internal/ir"
)

// cycleError turns a toposort failure into a DEPENDENCY_CYCLE error that
// names the lowest task on a cycle and the cycle path.
func (d *Graph) cycleError(cause error) error {
	for _, scc := range d.tarjanSCC() {
		if len(scc) < 2 {
			continue
		}
		path := d.cyclePath(scc)
		labels := make([]string, len(path))
		for i, idx := range path {
			labels[i] = strconv.Itoa(int(d.tasks[idx].ID))
		}
		e := ir.NewTaskError(ir.ErrCodeDependencyCycle, d.tasks[path[0]].ID,
			"dependency cycle: %s", strings.Join(labels, " -> "))
		e.Details = map[string]string{"cause": cause.Error()}
		return e
	}
	return ir.NewError(ir.ErrCodeDependencyCycle, "dependency cycle: %v", cause)
}

// tarjanSCC finds strongly connected components over dense indices.
// Components are returned with their members sorted, ordered by their
// lowest member.
func (d *Graph) tarjanSCC() [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(d.tasks))
		lowlink = make([]int, len(d.tasks))
		onStack = make([]bool, len(d.tasks))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range d.succs[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for v := range d.tasks {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}

	slices.SortFunc(sccs, func(a, b []int) int { return a[0] - b[0] })
	return sccs
}

// cyclePath returns the shortest cycle through the lowest member of the
// component, found by a breadth-first search restricted to the component.
func (d *Graph) cyclePath(scc []int) []int {
	member := make(map[int]bool, len(scc))
	for _, v := range scc {
		member[v] = true
	}

	start := scc[0]
	parent := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, w := range d.succs[u] {
			if w == start {
				var path []int
				for v := u; v >= 0; v = parent[v] {
					path = append(path, v)
				}
				slices.Reverse(path)
				return append(path, start)
			}
			if _, seen := parent[w]; seen || !member[w] {
				continue
			}
			parent[w] = u
			queue = append(queue, w)
		}
	}
	return []int{start}
}
