package resource

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/bsched/internal/ir"
)

// Demand is what one task holds while in flight. Consumers are the
// accelerator tasks that will wait on the barrier the task signals; the
// scheduler fills them in from the graph.
type Demand struct {
	Slots     int
	Memory    map[string]int64
	Consumers []ir.TaskID
}

// DemandOf computes the demand of t. Memory demand per space is the size of
// the union of the buffer ranges, so overlapping buffers count once.
// Unbounded spaces are dropped by the State on reservation.
func DemandOf(t ir.Task) Demand {
	d := Demand{Slots: t.SlotDemand()}
	bySpace := make(map[string][]ir.MemoryRange)
	for _, b := range t.Buffers {
		if b.Length > 0 {
			bySpace[b.Space] = append(bySpace[b.Space], b)
		}
	}
	for space, ranges := range bySpace {
		if d.Memory == nil {
			d.Memory = make(map[string]int64, len(bySpace))
		}
		d.Memory[space] = unionLength(ranges)
	}
	return d
}

// unionLength returns the number of bytes covered by ranges.
func unionLength(ranges []ir.MemoryRange) int64 {
	slices.SortFunc(ranges, func(a, b ir.MemoryRange) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	var total int64
	start, end := ranges[0].Offset, ranges[0].Offset+ranges[0].Length
	for _, r := range ranges[1:] {
		if r.Offset > end {
			total += end - start
			start, end = r.Offset, r.Offset+r.Length
			continue
		}
		end = max(end, r.Offset+r.Length)
	}
	return total + end - start
}

// State composes barrier slots and memory for one scheduling session.
type State struct {
	Barriers *BarrierState
	Memory   *MemoryState
}

// NewState creates the resource state for a target, using count barrier
// indices instead of the target's full pool.
func NewState(t ir.Target, count int) *State {
	return &State{
		Barriers: NewBarrierState(count, t.SlotsPerBarrier),
		Memory:   NewMemoryState(t.MemoryCapacity),
	}
}

// IsAvailable reports whether task can reserve d now.
func (s *State) IsAvailable(task ir.TaskID, d Demand) bool {
	return s.Barriers.IsAvailable(task, d.Slots) && s.Memory.Fits(d.Memory)
}

// Reserve takes a barrier index then memory for task. If memory does not
// fit the index reservation is rolled back. Returns the barrier index.
func (s *State) Reserve(task ir.TaskID, d Demand) (int, bool) {
	index, ok := s.Barriers.Reserve(task, d.Slots, d.Consumers)
	if !ok {
		return ir.NoBarrier, false
	}
	if !s.Memory.Reserve(task, d.Memory) {
		// Unreserve cannot fail for the reservation made just above.
		_ = s.Barriers.Unreserve(task)
		return ir.NoBarrier, false
	}
	return index, true
}

// Takeover reserves d for task by displacing the barrier on the index with
// the fewest pending consumers. It is only meant for an idle target where
// every index is still needed.
func (s *State) Takeover(task ir.TaskID, d Demand) (Takeover, bool) {
	tk, ok := s.Barriers.Takeover(task, d.Slots, d.Consumers)
	if !ok {
		return tk, false
	}
	if !s.Memory.Reserve(task, d.Memory) {
		_ = s.Barriers.Unreserve(task)
		return Takeover{Index: ir.NoBarrier}, false
	}
	return tk, true
}

// Advance moves the barrier state to time now.
func (s *State) Advance(now int) { s.Barriers.Advance(now) }

// Release returns everything task holds.
func (s *State) Release(task ir.TaskID) error {
	if err := s.Barriers.Release(task); err != nil {
		return err
	}
	s.Memory.Release(task)
	return nil
}

// Unreserve reverses the most recent reservation, made for task, while it
// is still in flight.
func (s *State) Unreserve(task ir.TaskID) error {
	if err := s.Barriers.Unreserve(task); err != nil {
		return err
	}
	s.Memory.Release(task)
	return nil
}

// CheckFeasible reports a demand that could never be satisfied, even on an
// idle target.
func (s *State) CheckFeasible(task ir.TaskID, d Demand) error {
	if d.Slots > s.Barriers.SlotsPerBarrier() {
		return ir.NewInfeasibleDemandError(task, "slots",
			int64(d.Slots), int64(s.Barriers.SlotsPerBarrier()))
	}
	if d.Slots > 0 && s.Barriers.Count() == 0 {
		return ir.NewInfeasibleDemandError(task, "barriers", 1, 0)
	}
	for _, space := range slices.Sorted(maps.Keys(d.Memory)) {
		c := s.Memory.Capacity(space)
		if c >= 0 && d.Memory[space] > c {
			return ir.NewInfeasibleDemandError(task, "bytes of "+space, d.Memory[space], c)
		}
	}
	return nil
}
