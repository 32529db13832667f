package barrier

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/bsched/internal/ir"
)

// Stats counts what one Eliminate call removed.
type Stats struct {
	Passes          int
	ProducersPruned int
	ConsumersPruned int
	Merged          int
	Dropped         int
}

// oracle answers reachability over task -> update barrier -> consumer.
// Answers are memoized for the lifetime of one elimination; every removal
// the passes make keeps the reachability relation unchanged.
type oracle struct {
	t    *Table
	memo map[[2]ir.TaskID]bool
}

func newOracle(t *Table) *oracle {
	return &oracle{t: t, memo: make(map[[2]ir.TaskID]bool)}
}

// pathExists reports whether b transitively waits on a.
func (o *oracle) pathExists(a, b ir.TaskID) (bool, error) {
	ta, ok := o.t.timeOf[a]
	if !ok {
		return false, ir.NewTaskError(ir.ErrCodeInternal, a, "task has no schedule time")
	}
	tb, ok := o.t.timeOf[b]
	if !ok {
		return false, ir.NewTaskError(ir.ErrCodeInternal, b, "task has no schedule time")
	}
	if ta >= tb {
		return false, nil
	}
	key := [2]ir.TaskID{a, b}
	if v, ok := o.memo[key]; ok {
		return v, nil
	}

	found := false
	visited := map[ir.TaskID]bool{a: true}
	stack := []ir.TaskID{a}
	for len(stack) > 0 && !found {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, id := range o.t.update[x] {
			for _, c := range o.t.entries[id].consumers {
				if c == b {
					found = true
					break
				}
				tc, ok := o.t.timeOf[c]
				if !ok {
					return false, ir.NewTaskError(ir.ErrCodeInternal, c, "task has no schedule time")
				}
				if !visited[c] && tc < tb {
					visited[c] = true
					stack = append(stack, c)
				}
			}
			if found {
				break
			}
		}
	}

	o.memo[key] = found
	return found, nil
}

// Eliminate removes redundant producers, consumers and barriers from t in
// place, repeating until nothing changes, then renumbers barriers densely.
// Merged barriers never exceed slotsPerBarrier producer slots.
func Eliminate(t *Table, slotsPerBarrier int) (Stats, error) {
	var stats Stats
	o := newOracle(t)
	for {
		stats.Passes++
		changed := false

		n, err := pruneProducers(t, o)
		if err != nil {
			return stats, err
		}
		stats.ProducersPruned += n
		changed = changed || n > 0

		n, err = pruneConsumers(t, o)
		if err != nil {
			return stats, err
		}
		stats.ConsumersPruned += n
		changed = changed || n > 0

		n = mergeDuplicates(t, slotsPerBarrier)
		stats.Merged += n
		changed = changed || n > 0

		n = dropEmpty(t)
		stats.Dropped += n
		changed = changed || n > 0

		if !changed {
			break
		}
	}
	t.renumber()
	return stats, nil
}

// pruneProducers drops producer p of a barrier when another producer q of
// the same barrier already waits on p.
func pruneProducers(t *Table, o *oracle) (int, error) {
	removed := 0
	for _, id := range t.ids() {
		e := t.entries[id]
		for _, p := range slices.Clone(e.producers) {
			for _, q := range e.producers {
				if q == p {
					continue
				}
				ok, err := o.pathExists(p, q)
				if err != nil {
					return removed, err
				}
				if ok {
					t.removeProducer(e, p)
					removed++
					break
				}
			}
		}
	}
	return removed, nil
}

// pruneConsumers drops consumer c of a barrier when c already waits on
// another consumer d of the same barrier.
func pruneConsumers(t *Table, o *oracle) (int, error) {
	removed := 0
	for _, id := range t.ids() {
		e := t.entries[id]
		for _, c := range slices.Clone(e.consumers) {
			for _, d := range e.consumers {
				if d == c {
					continue
				}
				ok, err := o.pathExists(d, c)
				if err != nil {
					return removed, err
				}
				if ok {
					t.removeConsumer(e, c)
					removed++
					break
				}
			}
		}
	}
	return removed, nil
}

// mergeDuplicates folds barriers with identical consumer sets into the one
// with the lowest id when the combined producer slots fit.
func mergeDuplicates(t *Table, slotsPerBarrier int) int {
	merged := 0
	keepers := make(map[string][]*entry)
	for _, id := range t.ids() {
		e := t.entries[id]
		if len(e.consumers) == 0 || len(e.producers) == 0 {
			continue
		}
		key := consumerKey(e.consumers)
		absorbed := false
		for _, k := range keepers[key] {
			if t.producerSlots(k, e) > slotsPerBarrier {
				continue
			}
			for _, p := range e.producers {
				t.addProducer(k, p)
			}
			t.drop(e)
			merged++
			absorbed = true
			break
		}
		if !absorbed {
			keepers[key] = append(keepers[key], e)
		}
	}
	return merged
}

// producerSlots sums the slots of the union of both producer sets.
func (t *Table) producerSlots(a, b *entry) int {
	total := 0
	for _, p := range a.producers {
		total += t.slots[p]
	}
	for _, p := range b.producers {
		if _, found := slices.BinarySearch(a.producers, p); !found {
			total += t.slots[p]
		}
	}
	return total
}

// dropEmpty deletes barriers with no producers or no consumers.
func dropEmpty(t *Table) int {
	dropped := 0
	for _, id := range t.ids() {
		e := t.entries[id]
		if len(e.producers) == 0 || len(e.consumers) == 0 {
			t.drop(e)
			dropped++
		}
	}
	return dropped
}

func consumerKey(consumers []ir.TaskID) string {
	var b strings.Builder
	for i, c := range consumers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	return b.String()
}
