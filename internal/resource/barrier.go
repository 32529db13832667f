// Package resource tracks the resources a scheduled task holds: the barrier
// index its virtual barrier lives on and bytes in bounded memory spaces.
//
// All types here are single-threaded. The scheduler owns one State per
// compilation and is the only writer.
package resource

import (
	"slices"

	"github.com/roach88/bsched/internal/ir"
)

// token is the virtual barrier currently open on one index.
type token struct {
	time      int // -1 until the index is first used
	used      int
	producers []ir.TaskID
	consumers []ir.TaskID // sorted
}

func (t token) clone() token {
	t.producers = slices.Clone(t.producers)
	t.consumers = slices.Clone(t.consumers)
	return t
}

// Takeover describes the barrier displaced by BarrierState.Takeover.
type Takeover struct {
	Index     int
	Producers []ir.TaskID
	Pending   []ir.TaskID // consumers that had not issued yet
}

type reservation struct {
	task   ir.TaskID
	index  int
	before token
}

type slotHold struct {
	index int
	slots int
}

// BarrierState tracks the virtual barrier open on each barrier index.
//
// Tasks issued on an index at the same time share one barrier and fill its
// producer slots. The index only becomes free for a later time once every
// consumer of that barrier has issued, so the physical barrier behind it is
// never needed twice at once. Completion returns the in-flight slot hold
// but leaves the barrier in place.
type BarrierState struct {
	slotsPerBarrier int
	now             int
	tokens          []token
	issued          map[ir.TaskID]bool
	held            map[ir.TaskID]slotHold
	journal         []reservation
}

// NewBarrierState creates a state with count indices of slotsPerBarrier slots.
func NewBarrierState(count, slotsPerBarrier int) *BarrierState {
	tokens := make([]token, count)
	for i := range tokens {
		tokens[i].time = -1
	}
	return &BarrierState{
		slotsPerBarrier: slotsPerBarrier,
		tokens:          tokens,
		issued:          make(map[ir.TaskID]bool),
		held:            make(map[ir.TaskID]slotHold),
	}
}

// Count returns the number of barrier indices.
func (b *BarrierState) Count() int { return len(b.tokens) }

// SlotsPerBarrier returns the slot capacity of one index.
func (b *BarrierState) SlotsPerBarrier() int { return b.slotsPerBarrier }

// Advance moves the current time forward. Barriers opened earlier can no
// longer be joined.
func (b *BarrierState) Advance(now int) {
	if now > b.now {
		b.now = now
	}
}

// pending lists the consumers of index i that have not issued, ignoring task.
func (b *BarrierState) pending(i int, task ir.TaskID) []ir.TaskID {
	var out []ir.TaskID
	for _, c := range b.tokens[i].consumers {
		if c != task && !b.issued[c] {
			out = append(out, c)
		}
	}
	return out
}

func (b *BarrierState) free(i int, task ir.TaskID) bool {
	tok := b.tokens[i]
	return tok.time < b.now && len(b.pending(i, task)) == 0
}

func (b *BarrierState) joinable(i, demand int) bool {
	tok := b.tokens[i]
	return tok.time == b.now && tok.used+demand <= b.slotsPerBarrier
}

// IsAvailable reports whether task can put demand slots on some index now.
// A zero demand is always available.
func (b *BarrierState) IsAvailable(task ir.TaskID, demand int) bool {
	return demand == 0 || b.pick(task, demand) != ir.NoBarrier
}

// pick selects the index for demand. A free index wins, lowest first;
// otherwise the barrier opened at the current time with the fewest free
// slots that still fit.
func (b *BarrierState) pick(task ir.TaskID, demand int) int {
	if demand <= 0 || demand > b.slotsPerBarrier {
		return ir.NoBarrier
	}
	for i := range b.tokens {
		if b.free(i, task) {
			return i
		}
	}
	best := ir.NoBarrier
	for i, tok := range b.tokens {
		if !b.joinable(i, demand) {
			continue
		}
		if best == ir.NoBarrier || tok.used > b.tokens[best].used {
			best = i
		}
	}
	return best
}

// Reserve issues task with demand slots and returns the chosen index.
// consumers are the tasks that will wait on the barrier task signals.
// A zero demand succeeds with ir.NoBarrier. ok is false when no index fits
// or the task was already issued.
func (b *BarrierState) Reserve(task ir.TaskID, demand int, consumers []ir.TaskID) (index int, ok bool) {
	if b.issued[task] {
		return ir.NoBarrier, false
	}
	if demand == 0 {
		b.record(task, ir.NoBarrier, 0)
		return ir.NoBarrier, true
	}
	i := b.pick(task, demand)
	if i == ir.NoBarrier {
		return ir.NoBarrier, false
	}
	b.record(task, i, demand)
	if b.tokens[i].time != b.now {
		b.tokens[i] = token{time: b.now}
	}
	b.join(i, task, demand, consumers)
	return i, true
}

// Takeover issues task on the index whose barrier has the fewest pending
// consumers, lowest index first, even though that barrier is still needed.
// The pending consumers move to the new barrier; the caller must order them
// after task and order task after the displaced producers.
func (b *BarrierState) Takeover(task ir.TaskID, demand int, consumers []ir.TaskID) (Takeover, bool) {
	if b.issued[task] || demand <= 0 || demand > b.slotsPerBarrier || len(b.tokens) == 0 {
		return Takeover{Index: ir.NoBarrier}, false
	}
	best, bestPending := ir.NoBarrier, []ir.TaskID(nil)
	for i, tok := range b.tokens {
		if tok.time >= b.now {
			continue
		}
		p := b.pending(i, task)
		if best == ir.NoBarrier || len(p) < len(bestPending) {
			best, bestPending = i, p
		}
	}
	if best == ir.NoBarrier {
		return Takeover{Index: ir.NoBarrier}, false
	}

	old := b.tokens[best]
	b.record(task, best, demand)
	b.tokens[best] = token{time: b.now}
	b.join(best, task, demand, consumers)
	b.addConsumers(best, bestPending)
	return Takeover{
		Index:     best,
		Producers: slices.Clone(old.producers),
		Pending:   bestPending,
	}, true
}

func (b *BarrierState) record(task ir.TaskID, index, demand int) {
	r := reservation{task: task, index: index}
	if index != ir.NoBarrier {
		r.before = b.tokens[index].clone()
	}
	b.journal = append(b.journal, r)
	b.issued[task] = true
	b.held[task] = slotHold{index: index, slots: demand}
}

func (b *BarrierState) join(i int, task ir.TaskID, demand int, consumers []ir.TaskID) {
	tok := &b.tokens[i]
	tok.used += demand
	tok.producers = append(tok.producers, task)
	b.addConsumers(i, consumers)
}

func (b *BarrierState) addConsumers(i int, consumers []ir.TaskID) {
	tok := &b.tokens[i]
	for _, c := range consumers {
		if pos, found := slices.BinarySearch(tok.consumers, c); !found {
			tok.consumers = slices.Insert(tok.consumers, pos, c)
		}
	}
}

// Release returns the in-flight slot hold of task. Its barrier stays open
// until the consumers have issued.
func (b *BarrierState) Release(task ir.TaskID) error {
	if _, ok := b.held[task]; !ok {
		return ir.NewTaskError(ir.ErrCodeInternal, task, "release of a task holding no barrier slots")
	}
	delete(b.held, task)
	return nil
}

// Unreserve reverses the most recent Reserve or Takeover, which must be the
// one made for task, restoring the index exactly as it was.
func (b *BarrierState) Unreserve(task ir.TaskID) error {
	n := len(b.journal)
	if n == 0 || b.journal[n-1].task != task {
		return ir.NewTaskError(ir.ErrCodeInternal, task,
			"only the most recent reservation can be reversed")
	}
	r := b.journal[n-1]
	b.journal = b.journal[:n-1]
	if r.index != ir.NoBarrier {
		b.tokens[r.index] = r.before
	}
	delete(b.issued, task)
	delete(b.held, task)
	return nil
}

// Holds reports the index and slot count held in flight by task.
func (b *BarrierState) Holds(task ir.TaskID) (index, slots int, ok bool) {
	h, ok := b.held[task]
	return h.index, h.slots, ok
}

// Utilization returns the slots held in flight per index.
func (b *BarrierState) Utilization() []int {
	used := make([]int, len(b.tokens))
	for _, h := range b.held {
		if h.index != ir.NoBarrier {
			used[h.index] += h.slots
		}
	}
	return used
}

// ActiveCount returns the number of indices whose barrier is still needed:
// a producer is in flight or a consumer has not issued.
func (b *BarrierState) ActiveCount() int {
	inFlight := make([]bool, len(b.tokens))
	for _, h := range b.held {
		if h.index != ir.NoBarrier {
			inFlight[h.index] = true
		}
	}
	n := 0
	for i := range b.tokens {
		if inFlight[i] || len(b.pending(i, ir.NoTask)) > 0 {
			n++
		}
	}
	return n
}
