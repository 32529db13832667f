// Package depgraph holds the task graph as an arena with dense indices.
//
// Tasks are sorted by TaskID and addressed by their position in that order.
// Predecessor and successor lists hold dense indices, so the scheduler and
// the barrier passes work on int slices instead of pointer-linked nodes.
package depgraph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gammazero/toposort"

	"github.com/roach88/bsched/internal/ir"
)

// Graph is an immutable, validated task graph.
type Graph struct {
	name  string
	tasks []ir.Task
	index map[ir.TaskID]int
	preds [][]int
	succs [][]int
	order []int
}

// New validates g and builds the arena. The input is not modified.
//
// Structural problems return INVALID_GRAPH; a dependency cycle returns
// DEPENDENCY_CYCLE naming one task on the cycle.
func New(g ir.Graph) (*Graph, error) {
	tasks := slices.Clone(g.Tasks)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	d := &Graph{
		name:  g.Name,
		tasks: tasks,
		index: make(map[ir.TaskID]int, len(tasks)),
		preds: make([][]int, len(tasks)),
		succs: make([][]int, len(tasks)),
	}

	for i, t := range tasks {
		if err := checkTask(t); err != nil {
			return nil, err
		}
		if _, dup := d.index[t.ID]; dup {
			return nil, ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID, "duplicate task id")
		}
		d.index[t.ID] = i
	}

	for i, t := range tasks {
		seen := make(map[int]bool, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return nil, ir.NewTaskError(ir.ErrCodeDependencyCycle, t.ID, "task depends on itself")
			}
			j, ok := d.index[dep]
			if !ok {
				return nil, ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID, "depends on unknown task %d", dep)
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			d.preds[i] = append(d.preds[i], j)
			d.succs[j] = append(d.succs[j], i)
		}
	}
	for i := range tasks {
		slices.Sort(d.preds[i])
		slices.Sort(d.succs[i])
	}

	order, err := d.validate()
	if err != nil {
		return nil, err
	}
	d.order = order
	return d, nil
}

func checkTask(t ir.Task) error {
	if t.ID < 0 {
		return ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID, "task id must be non-negative")
	}
	if t.Kind != "" && !ir.ValidTaskKinds[t.Kind] {
		return ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID, "unknown task kind %q", t.Kind)
	}
	if t.Slots < 0 {
		return ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID, "slot demand must be non-negative")
	}
	for _, b := range t.Buffers {
		if b.Space == "" || b.Offset < 0 || b.Length < 0 {
			return ir.NewTaskError(ir.ErrCodeInvalidGraph, t.ID,
				"invalid buffer %s[%d+%d]", b.Space, b.Offset, b.Length)
		}
	}
	return nil
}

// validate runs a topological sort and returns dense indices in a
// dependency-respecting order.
func (d *Graph) validate() ([]int, error) {
	var edges []toposort.Edge
	for i := range d.tasks {
		if len(d.preds[i]) == 0 {
			edges = append(edges, toposort.Edge{nil, i})
			continue
		}
		for _, p := range d.preds[i] {
			edges = append(edges, toposort.Edge{p, i})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, d.cycleError(err)
	}

	order := make([]int, 0, len(d.tasks))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(int))
		}
	}
	if len(order) != len(d.tasks) {
		return nil, ir.NewError(ir.ErrCodeInternal,
			"topological sort lost %d tasks", len(d.tasks)-len(order))
	}
	return order, nil
}

// Name returns the graph name.
func (d *Graph) Name() string { return d.name }

// Len returns the number of tasks.
func (d *Graph) Len() int { return len(d.tasks) }

// Task returns the task at dense index i.
func (d *Graph) Task(i int) ir.Task { return d.tasks[i] }

// ID returns the TaskID at dense index i.
func (d *Graph) ID(i int) ir.TaskID { return d.tasks[i].ID }

// Index maps a TaskID to its dense index.
func (d *Graph) Index(id ir.TaskID) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}

// MustIndex maps a TaskID to its dense index and panics on unknown ids.
func (d *Graph) MustIndex(id ir.TaskID) int {
	i, ok := d.index[id]
	if !ok {
		panic(fmt.Sprintf("depgraph: unknown task %d", id))
	}
	return i
}

// Preds returns the sorted predecessor indices of i. Callers must not modify it.
func (d *Graph) Preds(i int) []int { return d.preds[i] }

// Succs returns the sorted successor indices of i. Callers must not modify it.
func (d *Graph) Succs(i int) []int { return d.succs[i] }

// InDegrees returns a fresh slice of predecessor counts.
func (d *Graph) InDegrees() []int {
	deg := make([]int, len(d.tasks))
	for i := range d.tasks {
		deg[i] = len(d.preds[i])
	}
	return deg
}

// TopoOrder returns a dependency-respecting order of dense indices.
func (d *Graph) TopoOrder() []int { return slices.Clone(d.order) }

// Levels returns the Kahn level of each task: sources are level 0 and every
// other task sits one level below its deepest predecessor.
func (d *Graph) Levels() []int {
	levels := make([]int, len(d.tasks))
	deg := d.InDegrees()
	frontier := make([]int, 0, len(d.tasks))
	for i, n := range deg {
		if n == 0 {
			frontier = append(frontier, i)
		}
	}
	for level := 0; len(frontier) > 0; level++ {
		var next []int
		for _, i := range frontier {
			levels[i] = level
			for _, s := range d.succs[i] {
				deg[s]--
				if deg[s] == 0 {
					next = append(next, s)
				}
			}
		}
		slices.Sort(next)
		frontier = next
	}
	return levels
}

// Edges calls fn for every dependency edge in (from, to) index order.
func (d *Graph) Edges(fn func(from, to int)) {
	for i := range d.tasks {
		for _, s := range d.succs[i] {
			fn(i, s)
		}
	}
}
