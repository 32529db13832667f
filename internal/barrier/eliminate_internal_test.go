package barrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/testutil"
)

// handTable builds a table for tasks 0..n-1 at times 0..n-1, one slot each.
func handTable(n int) *Table {
	t := newTable()
	for i := 0; i < n; i++ {
		t.timeOf[ir.TaskID(i)] = i
		t.slots[ir.TaskID(i)] = 1
	}
	return t
}

func link(t *Table, producers, consumers []ir.TaskID) *entry {
	e := t.open(0)
	for _, p := range producers {
		t.addProducer(e, p)
	}
	for _, c := range consumers {
		t.addConsumer(e, c)
	}
	return e
}

// TestPruneProducers_EarlierProducerDropped tests producer pruning.
func TestPruneProducers_EarlierProducerDropped(t *testing.T) {
	table := handTable(3)
	link(table, ids(0, 1), ids(2)) // 0 and 1 both signal 2
	link(table, ids(0), ids(1))    // 1 already waits on 0

	stats, err := Eliminate(table, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ProducersPruned)

	assert.Equal(t, []ir.Barrier{
		{ID: 0, PhysicalID: -1, Producers: ids(1), Consumers: ids(2)},
		{ID: 1, PhysicalID: -1, Producers: ids(0), Consumers: ids(1)},
	}, table.Barriers())
}

// TestPruneConsumers_LaterConsumerDropped tests consumer pruning.
func TestPruneConsumers_LaterConsumerDropped(t *testing.T) {
	table := handTable(3)
	link(table, ids(0), ids(1, 2)) // 1 and 2 both wait on 0
	link(table, ids(1), ids(2))    // 2 already waits on 1

	stats, err := Eliminate(table, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ConsumersPruned)

	assert.Equal(t, []int{1}, table.Wait(2))
	assert.Equal(t, []ir.Barrier{
		{ID: 0, PhysicalID: -1, Producers: ids(0), Consumers: ids(1)},
		{ID: 1, PhysicalID: -1, Producers: ids(1), Consumers: ids(2)},
	}, table.Barriers())
}

// TestEliminate_CascadeToFixpoint tests that a merge enabling more pruning is
// followed through in the same call.
func TestEliminate_CascadeToFixpoint(t *testing.T) {
	table := handTable(4)
	link(table, ids(0), ids(3))
	link(table, ids(1), ids(3))
	link(table, ids(0), ids(1))
	link(table, ids(2), ids(3))

	stats, err := Eliminate(table, 8)
	require.NoError(t, err)
	assert.Greater(t, stats.Passes, 1)

	// Barriers for 3 merge into {0,1,2} -> {3}; 0 is then implied by 1.
	assert.Equal(t, []ir.Barrier{
		{ID: 0, PhysicalID: -1, Producers: ids(1, 2), Consumers: ids(3)},
		{ID: 1, PhysicalID: -1, Producers: ids(0), Consumers: ids(1)},
	}, table.Barriers())
}

// TestPathExists tests the reachability oracle.
func TestPathExists(t *testing.T) {
	table := handTable(4)
	link(table, ids(0), ids(1))
	link(table, ids(1), ids(3))

	o := newOracle(table)
	for _, tc := range []struct {
		a, b ir.TaskID
		want bool
	}{
		{0, 1, true},
		{0, 3, true},
		{0, 2, false},
		{3, 0, false},
		{1, 1, false},
	} {
		got, err := o.pathExists(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%d -> %d", tc.a, tc.b)
	}

	_, err := o.pathExists(0, 42)
	require.Error(t, err)
	assert.True(t, ir.IsInternal(err))
}

// TestVerifyCoverage_DetectsLoss tests UNDER_SYNCHRONIZED on a dropped wait.
func TestVerifyCoverage_DetectsLoss(t *testing.T) {
	dg, err := depgraph.New(testutil.Chain(3))
	require.NoError(t, err)

	table := handTable(3)
	link(table, ids(0), ids(1))
	e := link(table, ids(1), ids(2))
	require.NoError(t, VerifyCoverage(dg, table))

	table.removeConsumer(e, 2)
	err = VerifyCoverage(dg, table)
	require.Error(t, err)

	var ce *ir.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ir.ErrCodeUnderSynchronized, ce.Code)
	assert.Equal(t, ir.TaskID(2), ce.Task)
	assert.Equal(t, "1", ce.Details["producer"])
}
