package barrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/scheduler"
	"github.com/roach88/bsched/internal/testutil"
)

func schedule(t *testing.T, g ir.Graph, target ir.Target) (*depgraph.Graph, []ir.ScheduledOp, []ir.SyncEdge) {
	t.Helper()
	dg, err := depgraph.New(g)
	require.NoError(t, err)
	s, err := scheduler.New(dg, target, target.BarrierCount)
	require.NoError(t, err)
	ops, err := s.Run()
	require.NoError(t, err)
	return dg, ops, s.SyncEdges()
}

func ids(v ...ir.TaskID) []ir.TaskID { return v }

// TestAssign_Diamond tests the virtual barriers before elimination.
func TestAssign_Diamond(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.Diamond(), testutil.Target(4, 256))

	table, err := Assign(dg, ops)
	require.NoError(t, err)

	assert.Equal(t, []ir.Barrier{
		{ID: 0, Index: 0, PhysicalID: -1, Producers: ids(0), Consumers: ids(1, 2)},
		{ID: 1, Index: 1, PhysicalID: -1, Producers: ids(1), Consumers: ids(3)},
		{ID: 2, Index: 0, PhysicalID: -1, Producers: ids(2), Consumers: ids(3)},
		{ID: 3, Index: 0, PhysicalID: -1, Producers: ids(3), Consumers: ids()},
	}, table.Barriers())
	assert.Equal(t, []int{1, 2}, table.Wait(3))
	assert.Equal(t, []int{0}, table.Update(0))
}

// TestPipeline_Diamond tests elimination and lowering of the diamond.
func TestPipeline_Diamond(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.Diamond(), testutil.Target(4, 256))
	table, err := Assign(dg, ops)
	require.NoError(t, err)

	stats, err := Eliminate(table, 256)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, stats.Dropped)

	require.NoError(t, VerifyCoverage(dg, table))
	require.NoError(t, Lower(table, LinearOrder(ops), 4))

	assert.Equal(t, []ir.Barrier{
		{ID: 0, Index: 0, PhysicalID: 0, Producers: ids(0), Consumers: ids(1, 2)},
		{ID: 1, Index: 1, PhysicalID: 0, Producers: ids(1, 2), Consumers: ids(3)},
	}, table.Barriers(), "tasks 1 and 2 free barrier 0 before barrier 1 is issued in the same step")

	assert.Equal(t, []ir.TaskSync{
		{Task: 0, Time: 0, Wait: []int{}, Update: []int{0}},
		{Task: 1, Time: 1, Wait: []int{0}, Update: []int{1}},
		{Task: 2, Time: 1, Wait: []int{0}, Update: []int{1}},
		{Task: 3, Time: 2, Wait: []int{1}, Update: []int{}},
	}, table.Sync(LinearOrder(ops)))
}

// TestPipeline_Chain tests a chain on a two-barrier, one-slot target.
func TestPipeline_Chain(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.Chain(5), testutil.Target(2, 1))
	table, err := Assign(dg, ops)
	require.NoError(t, err)

	_, err = Eliminate(table, 1)
	require.NoError(t, err)
	require.NoError(t, VerifyCoverage(dg, table))
	require.NoError(t, Lower(table, LinearOrder(ops), 2))

	barriers := table.Barriers()
	require.Len(t, barriers, 4)
	for i, b := range barriers {
		assert.Equal(t, i, b.ID)
		assert.Equal(t, ids(ir.TaskID(i)), b.Producers)
		assert.Equal(t, ids(ir.TaskID(i+1)), b.Consumers)
		assert.Equal(t, 0, b.PhysicalID, "each barrier is free before the next opens")
	}
}

// TestPipeline_ParallelChains tests two independent edges.
func TestPipeline_ParallelChains(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.ParallelChains(), testutil.Target(4, 256))
	table, err := Assign(dg, ops)
	require.NoError(t, err)
	_, err = Eliminate(table, 256)
	require.NoError(t, err)

	assert.Equal(t, []ir.Barrier{
		{ID: 0, Index: 0, PhysicalID: -1, Producers: ids(0), Consumers: ids(1)},
		{ID: 1, Index: 1, PhysicalID: -1, Producers: ids(2), Consumers: ids(3)},
	}, table.Barriers())
}

// TestLower_PoolExhausted tests a lowering failure on a pool that is too small.
func TestLower_PoolExhausted(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.ParallelChains(), testutil.Target(4, 256))
	table, err := Assign(dg, ops)
	require.NoError(t, err)
	_, err = Eliminate(table, 256)
	require.NoError(t, err)

	err = Lower(table, LinearOrder(ops), 1)
	require.Error(t, err)
	var ce *ir.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ir.ErrCodeBarrierLowering, ce.Code)
	assert.Equal(t, ir.TaskID(2), ce.Task)
	assert.Equal(t, 1, ce.Barrier)

	for _, b := range table.Barriers() {
		assert.Equal(t, -1, b.PhysicalID, "failed lowering leaves the table untouched")
	}
}

// TestEliminate_Idempotent tests that a second elimination changes nothing.
func TestEliminate_Idempotent(t *testing.T) {
	for seed := uint64(1); seed <= 15; seed++ {
		target := testutil.Target(3, 2)
		dg, ops, synced := schedule(t, testutil.Layered(60, 3, seed), target)
		table, err := Assign(dg, ops, synced...)
		require.NoError(t, err)

		_, err = Eliminate(table, target.SlotsPerBarrier)
		require.NoError(t, err)
		require.NoError(t, VerifyCoverage(dg, table), "seed %d", seed)

		again := table.Clone()
		stats, err := Eliminate(again, target.SlotsPerBarrier)
		require.NoError(t, err)

		assert.Equal(t, Stats{Passes: 1}, stats, "seed %d", seed)
		order := LinearOrder(ops)
		assert.Equal(t, table.Barriers(), again.Barriers(), "seed %d", seed)
		assert.Equal(t, table.Sync(order), again.Sync(order), "seed %d", seed)

		assert.NoError(t, Lower(table, order, target.BarrierCount), "seed %d", seed)
	}
}

// TestEliminate_MergeRespectsCapacity tests that merges never overflow a barrier.
func TestEliminate_MergeRespectsCapacity(t *testing.T) {
	dg, ops, _ := schedule(t, testutil.Diamond(), testutil.Target(4, 256))
	table, err := Assign(dg, ops)
	require.NoError(t, err)

	stats, err := Eliminate(table, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.Merged)
	assert.Equal(t, 3, table.Len())
	require.NoError(t, VerifyCoverage(dg, table))
}

// TestAssign_SyncEdges tests that takeover orderings become barrier
// consumers and let elimination retire the displaced barrier early.
func TestAssign_SyncEdges(t *testing.T) {
	g := ir.Graph{Tasks: []ir.Task{testutil.Acc(0), testutil.Acc(1), testutil.Acc(2, 0, 1)}}
	dg, ops, synced := schedule(t, g, testutil.Target(1, 1))
	require.Equal(t, []ir.SyncEdge{{From: 0, To: 1}, {From: 1, To: 2}}, synced)

	table, err := Assign(dg, ops, synced...)
	require.NoError(t, err)
	assert.Equal(t, []ir.Barrier{
		{ID: 0, Index: 0, PhysicalID: -1, Producers: ids(0), Consumers: ids(1, 2)},
		{ID: 1, Index: 0, PhysicalID: -1, Producers: ids(1), Consumers: ids(2)},
		{ID: 2, Index: 0, PhysicalID: -1, Producers: ids(2), Consumers: ids()},
	}, table.Barriers())

	_, err = Eliminate(table, 1)
	require.NoError(t, err)
	require.NoError(t, VerifyCoverage(dg, table))
	require.NoError(t, Lower(table, LinearOrder(ops), 1))
	assert.Equal(t, []ir.Barrier{
		{ID: 0, Index: 0, PhysicalID: 0, Producers: ids(0), Consumers: ids(1)},
		{ID: 1, Index: 0, PhysicalID: 0, Producers: ids(1), Consumers: ids(2)},
	}, table.Barriers())

	_, err = Assign(dg, ops, ir.SyncEdge{From: 2, To: 0})
	require.Error(t, err)
	assert.True(t, ir.IsInternal(err), "sync edges must point forward in time")
}

// TestAssign_HostTasks tests that host tasks never join a barrier.
func TestAssign_HostTasks(t *testing.T) {
	g := ir.Graph{Tasks: []ir.Task{testutil.Acc(0), testutil.Host(1, 0), testutil.Acc(2, 1)}}
	dg, ops, _ := schedule(t, g, testutil.Target(2, 4))
	table, err := Assign(dg, ops)
	require.NoError(t, err)

	assert.Empty(t, table.Update(1))
	assert.Empty(t, table.Wait(1))

	_, err = Eliminate(table, 4)
	require.NoError(t, err)
	assert.Zero(t, table.Len())
	require.NoError(t, VerifyCoverage(dg, table))
}

// TestAssign_MissingProducer tests the internal error for an unscheduled predecessor.
func TestAssign_MissingProducer(t *testing.T) {
	dg, err := depgraph.New(testutil.Chain(2))
	require.NoError(t, err)

	_, err = Assign(dg, []ir.ScheduledOp{{Task: 1, Time: 1, BarrierIndex: 0, Slots: 1}})
	require.Error(t, err)
	assert.True(t, ir.IsInternal(err))

	_, err = Assign(dg, []ir.ScheduledOp{
		{Task: 0, Time: 0, BarrierIndex: 0, Slots: 1},
		{Task: 0, Time: 1, BarrierIndex: 0, Slots: 1},
	})
	assert.True(t, ir.IsInternal(err))
}

// TestLinearOrder tests the (time, TaskID) order.
func TestLinearOrder(t *testing.T) {
	ops := []ir.ScheduledOp{{Task: 5, Time: 1}, {Task: 9, Time: 0}, {Task: 2, Time: 1}}
	assert.Equal(t, ids(9, 2, 5), LinearOrder(ops))
}
