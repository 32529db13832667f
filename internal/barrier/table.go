// Package barrier derives synchronization barriers from a schedule.
//
// Assign opens one virtual barrier per (resource index, time) transition
// and wires each to the accelerator successors of its producers. Eliminate
// removes dependencies implied by other paths and merges duplicates.
// VerifyCoverage checks that nothing needed was lost, and Lower maps the
// survivors onto the physical barrier pool.
package barrier

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/bsched/internal/ir"
)

// entry is one virtual barrier.
type entry struct {
	id        int
	index     int
	physical  int
	producers []ir.TaskID
	consumers []ir.TaskID
}

// Table is the barrier association of one schedule in both directions:
// barrier -> (producers, consumers) and task -> (wait, update).
type Table struct {
	entries map[int]*entry
	wait    map[ir.TaskID][]int
	update  map[ir.TaskID][]int
	timeOf  map[ir.TaskID]int
	slots   map[ir.TaskID]int
	nextID  int
}

func newTable() *Table {
	return &Table{
		entries: make(map[int]*entry),
		wait:    make(map[ir.TaskID][]int),
		update:  make(map[ir.TaskID][]int),
		timeOf:  make(map[ir.TaskID]int),
		slots:   make(map[ir.TaskID]int),
	}
}

// Len returns the number of barriers.
func (t *Table) Len() int { return len(t.entries) }

// Time returns the schedule time of task.
func (t *Table) Time(task ir.TaskID) (int, bool) {
	v, ok := t.timeOf[task]
	return v, ok
}

// Wait returns the sorted ids of the barriers task waits on.
func (t *Table) Wait(task ir.TaskID) []int { return slices.Clone(t.wait[task]) }

// Update returns the sorted ids of the barriers task signals.
func (t *Table) Update(task ir.TaskID) []int { return slices.Clone(t.update[task]) }

// Barriers returns every barrier ordered by id.
func (t *Table) Barriers() []ir.Barrier {
	out := make([]ir.Barrier, 0, len(t.entries))
	for _, id := range t.ids() {
		e := t.entries[id]
		out = append(out, ir.Barrier{
			ID:         e.id,
			Index:      e.index,
			PhysicalID: e.physical,
			Producers:  slices.Clone(e.producers),
			Consumers:  slices.Clone(e.consumers),
		})
	}
	return out
}

// Sync returns the wait/update attachments of the tasks in order.
func (t *Table) Sync(order []ir.TaskID) []ir.TaskSync {
	out := make([]ir.TaskSync, len(order))
	for i, task := range order {
		wait := t.Wait(task)
		if wait == nil {
			wait = []int{}
		}
		update := t.Update(task)
		if update == nil {
			update = []int{}
		}
		out[i] = ir.TaskSync{Task: task, Time: t.timeOf[task], Wait: wait, Update: update}
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := newTable()
	for id, e := range t.entries {
		cp := *e
		cp.producers = slices.Clone(e.producers)
		cp.consumers = slices.Clone(e.consumers)
		c.entries[id] = &cp
	}
	for k, v := range t.wait {
		c.wait[k] = slices.Clone(v)
	}
	for k, v := range t.update {
		c.update[k] = slices.Clone(v)
	}
	c.timeOf = maps.Clone(t.timeOf)
	c.slots = maps.Clone(t.slots)
	c.nextID = t.nextID
	return c
}

func (t *Table) ids() []int {
	return slices.Sorted(maps.Keys(t.entries))
}

func (t *Table) open(index int) *entry {
	e := &entry{id: t.nextID, index: index, physical: -1}
	t.entries[e.id] = e
	t.nextID++
	return e
}

func (t *Table) addProducer(e *entry, task ir.TaskID) {
	e.producers = insertSorted(e.producers, task)
	t.update[task] = insertSorted(t.update[task], e.id)
}

func (t *Table) addConsumer(e *entry, task ir.TaskID) {
	e.consumers = insertSorted(e.consumers, task)
	t.wait[task] = insertSorted(t.wait[task], e.id)
}

func (t *Table) removeProducer(e *entry, task ir.TaskID) {
	e.producers = remove(e.producers, task)
	t.update[task] = remove(t.update[task], e.id)
}

func (t *Table) removeConsumer(e *entry, task ir.TaskID) {
	e.consumers = remove(e.consumers, task)
	t.wait[task] = remove(t.wait[task], e.id)
}

// drop deletes a barrier and every reference to it.
func (t *Table) drop(e *entry) {
	for _, p := range e.producers {
		t.update[p] = remove(t.update[p], e.id)
	}
	for _, c := range e.consumers {
		t.wait[c] = remove(t.wait[c], e.id)
	}
	delete(t.entries, e.id)
}

// renumber makes barrier ids dense in ascending order of the current ids.
func (t *Table) renumber() {
	mapping := make(map[int]int, len(t.entries))
	entries := make(map[int]*entry, len(t.entries))
	for next, id := range t.ids() {
		mapping[id] = next
		e := t.entries[id]
		e.id = next
		entries[next] = e
	}
	t.entries = entries
	t.nextID = len(entries)

	relabel := func(m map[ir.TaskID][]int) {
		for task, ids := range m {
			if len(ids) == 0 {
				delete(m, task)
				continue
			}
			for i, id := range ids {
				ids[i] = mapping[id]
			}
			slices.Sort(ids)
		}
	}
	relabel(t.wait)
	relabel(t.update)
}

func insertSorted[T cmp.Ordered](s []T, v T) []T {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}

func remove[T cmp.Ordered](s []T, v T) []T {
	i, found := slices.BinarySearch(s, v)
	if !found {
		return s
	}
	return slices.Delete(s, i, i+1)
}
