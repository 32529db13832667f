package resource

import (
	"maps"
	"slices"

	"github.com/roach88/bsched/internal/ir"
)

// MemoryState tracks reserved bytes per bounded memory space.
// Spaces without a capacity are unbounded and never tracked.
type MemoryState struct {
	capacity map[string]int64
	used     map[string]int64
	held     map[ir.TaskID]map[string]int64
}

// NewMemoryState creates a state bounded by capacity.
func NewMemoryState(capacity map[string]int64) *MemoryState {
	return &MemoryState{
		capacity: maps.Clone(capacity),
		used:     make(map[string]int64, len(capacity)),
		held:     make(map[ir.TaskID]map[string]int64),
	}
}

// Bounded reports whether space has a capacity.
func (m *MemoryState) Bounded(space string) bool {
	_, ok := m.capacity[space]
	return ok
}

// Capacity returns the capacity of space, or -1 when unbounded.
func (m *MemoryState) Capacity(space string) int64 {
	c, ok := m.capacity[space]
	if !ok {
		return -1
	}
	return c
}

// Fits reports whether demand can be reserved now.
func (m *MemoryState) Fits(demand map[string]int64) bool {
	for space, n := range demand {
		c, ok := m.capacity[space]
		if ok && m.used[space]+n > c {
			return false
		}
	}
	return true
}

// Reserve records demand for task. It reserves nothing and returns false
// when the demand does not fit or the task already holds memory.
func (m *MemoryState) Reserve(task ir.TaskID, demand map[string]int64) bool {
	if _, dup := m.held[task]; dup || !m.Fits(demand) {
		return false
	}
	hold := make(map[string]int64)
	for space, n := range demand {
		if m.Bounded(space) && n > 0 {
			m.used[space] += n
			hold[space] = n
		}
	}
	m.held[task] = hold
	return true
}

// Release returns the memory held by task. Releasing a task that holds
// nothing is a no-op.
func (m *MemoryState) Release(task ir.TaskID) {
	for space, n := range m.held[task] {
		m.used[space] -= n
	}
	delete(m.held, task)
}

// Utilization returns the reserved bytes per bounded space.
func (m *MemoryState) Utilization() map[string]int64 {
	out := make(map[string]int64, len(m.capacity))
	for _, space := range slices.Sorted(maps.Keys(m.capacity)) {
		out[space] = m.used[space]
	}
	return out
}
