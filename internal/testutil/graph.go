// Package testutil provides graph builders and deterministic generators
// shared by package tests.
package testutil

import (
	"fmt"

	"github.com/roach88/bsched/internal/ir"
)

// Acc returns an accelerator task with one slot.
func Acc(id ir.TaskID, deps ...ir.TaskID) ir.Task {
	return ir.Task{
		ID:          id,
		Name:        fmt.Sprintf("t%d", id),
		Kind:        ir.KindDMA,
		DependsOn:   deps,
		Slots:       1,
		Accelerator: true,
	}
}

// Host returns a host (UPA) task that never touches a barrier.
func Host(id ir.TaskID, deps ...ir.TaskID) ir.Task {
	return ir.Task{
		ID:        id,
		Name:      fmt.Sprintf("h%d", id),
		Kind:      ir.KindUPA,
		DependsOn: deps,
	}
}

// Chain builds t0 -> t1 -> ... -> t(n-1).
func Chain(n int) ir.Graph {
	g := ir.Graph{Name: fmt.Sprintf("chain-%d", n)}
	for i := 0; i < n; i++ {
		var deps []ir.TaskID
		if i > 0 {
			deps = []ir.TaskID{ir.TaskID(i - 1)}
		}
		g.Tasks = append(g.Tasks, Acc(ir.TaskID(i), deps...))
	}
	return g
}

// Diamond builds 0 -> {1, 2} -> 3.
func Diamond() ir.Graph {
	return ir.Graph{
		Name: "diamond",
		Tasks: []ir.Task{
			Acc(0),
			Acc(1, 0),
			Acc(2, 0),
			Acc(3, 1, 2),
		},
	}
}

// ParallelChains builds two independent edges 0 -> 1 and 2 -> 3.
func ParallelChains() ir.Graph {
	return ir.Graph{
		Name: "parallel",
		Tasks: []ir.Task{
			Acc(0),
			Acc(1, 0),
			Acc(2),
			Acc(3, 2),
		},
	}
}

// Target returns a target with the given pool and no memory bounds.
func Target(barriers, slots int) ir.Target {
	return ir.Target{
		Name:            fmt.Sprintf("test-%dx%d", barriers, slots),
		BarrierCount:    barriers,
		SlotsPerBarrier: slots,
	}
}

// Layered builds a deterministic pseudo-random DAG of n tasks where each
// task depends on up to fanIn earlier tasks. The same arguments always
// produce the same graph.
func Layered(n, fanIn int, seed uint64) ir.Graph {
	g := ir.Graph{Name: fmt.Sprintf("layered-%d-%d-%d", n, fanIn, seed)}
	state := seed | 1
	next := func() uint64 {
		// xorshift64
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return state
	}
	for i := 0; i < n; i++ {
		var deps []ir.TaskID
		if i > 0 {
			k := int(next() % uint64(fanIn+1))
			seen := map[ir.TaskID]bool{}
			for j := 0; j < k; j++ {
				d := ir.TaskID(next() % uint64(i))
				if !seen[d] {
					seen[d] = true
					deps = append(deps, d)
				}
			}
		}
		t := Acc(ir.TaskID(i), deps...)
		if next()%5 == 0 {
			t = Host(ir.TaskID(i), deps...)
		}
		g.Tasks = append(g.Tasks, t)
	}
	return g
}
