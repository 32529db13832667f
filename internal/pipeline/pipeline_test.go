package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/barrier"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// TestDefault_Stages tests the stage order of the default pipeline.
func TestDefault_Stages(t *testing.T) {
	assert.Equal(t, []string{
		StageValidate, StageFeasibility, StageBarrierSchedule, StageControlEdges, StageFinalize,
	}, Default().Stages())
}

// TestCheck tests the validation-only pipeline.
func TestCheck(t *testing.T) {
	assert.Equal(t, []string{StageValidate, StageFeasibility}, Check().Stages())

	c, err := NewSession(WithPipeline(Check())).Run(context.Background(), testutil.Diamond(), testutil.Target(4, 256))
	require.NoError(t, err)
	assert.Nil(t, c.Schedule)
	require.NotNil(t, c.Deps)
	assert.Equal(t, 4, c.Deps.Len())

	cyclic := testutil.Chain(2)
	cyclic.Tasks[0].DependsOn = []ir.TaskID{1}
	_, err = NewSession(WithPipeline(Check())).Run(context.Background(), cyclic, testutil.Target(4, 256))
	assert.True(t, ir.IsCycle(err))
}

// TestCompile_Diamond tests the full pipeline on the diamond graph.
func TestCompile_Diamond(t *testing.T) {
	s, err := NewSession().Compile(context.Background(), testutil.Diamond(), testutil.Target(4, 256))
	require.NoError(t, err)

	assert.Equal(t, "diamond", s.Graph)
	assert.Equal(t, 4, s.BarrierCount)
	assert.Equal(t, []ir.TaskID{0, 1, 2, 3}, s.Order)
	require.Len(t, s.Barriers, 2)
	assert.Equal(t, []ir.TaskID{1, 2}, s.Barriers[1].Producers)
	assert.Equal(t, []int{1}, s.Tasks[3].Wait)
	assert.Empty(t, s.ControlEdges)
	assert.Len(t, s.Hash, 64)

	hash, err := ir.ScheduleHash(s)
	require.NoError(t, err)
	assert.Equal(t, s.Hash, hash)
}

// TestCompile_Chain tests a chain on a two-barrier, one-slot target.
func TestCompile_Chain(t *testing.T) {
	s, err := NewSession().Compile(context.Background(), testutil.Chain(5), testutil.Target(2, 1))
	require.NoError(t, err)

	require.Len(t, s.Barriers, 4)
	for _, b := range s.Barriers {
		assert.Equal(t, 0, b.PhysicalID)
	}
	for i, op := range s.Ops {
		assert.Equal(t, i, op.Time)
	}
}

// TestCompile_IndexHeldForPendingConsumers tests a graph where a producer
// completes long before one of its consumers can run.
func TestCompile_IndexHeldForPendingConsumers(t *testing.T) {
	g := ir.Graph{Name: "late-consumer", Tasks: []ir.Task{
		testutil.Acc(0),
		testutil.Acc(1),
		testutil.Acc(2),
		testutil.Acc(3, 2),
		testutil.Acc(4, 0, 1),
	}}
	s, err := NewSession().Compile(context.Background(), g, testutil.Target(2, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, s.BarrierCount)
	require.Len(t, s.Barriers, 3)
	assert.Equal(t, []int{0, 1, 0}, []int{
		s.Barriers[0].PhysicalID, s.Barriers[1].PhysicalID, s.Barriers[2].PhysicalID,
	})
}

// TestCompile_LayeredInvariants tests ordering, slot capacity, coverage,
// physical reuse and elimination stability on generated graphs.
func TestCompile_LayeredInvariants(t *testing.T) {
	targets := []ir.Target{
		testutil.Target(1, 1),
		testutil.Target(2, 1),
		testutil.Target(4, 1),
		testutil.Target(4, 256),
	}
	for _, target := range targets {
		for seed := uint64(1); seed <= 12; seed++ {
			g := testutil.Layered(60, 3, seed)
			t.Run(fmt.Sprintf("%s/seed-%d", target.Name, seed), func(t *testing.T) {
				c, err := NewSession(WithLogger(discard())).Run(context.Background(), g, target)
				require.NoError(t, err)
				s := c.Schedule
				assert.Equal(t, target.BarrierCount, s.BarrierCount, "first attempt always lowers")
				checkSchedule(t, g, target, s)

				again := c.Table.Clone()
				stats, err := barrier.Eliminate(again, target.SlotsPerBarrier)
				require.NoError(t, err)
				assert.Zero(t, stats.ProducersPruned+stats.ConsumersPruned+stats.Merged+stats.Dropped)
				assert.Equal(t, c.Table.Barriers(), again.Barriers())
			})
		}
	}
}

func checkSchedule(t *testing.T, g ir.Graph, target ir.Target, s *ir.Schedule) {
	t.Helper()
	timeOf := make(map[ir.TaskID]int, len(s.Ops))
	for _, op := range s.Ops {
		timeOf[op.Task] = op.Time
	}
	accel := make(map[ir.TaskID]bool, len(g.Tasks))
	slots := make(map[ir.TaskID]int, len(g.Tasks))
	for _, task := range g.Tasks {
		accel[task.ID] = task.Accelerator
		slots[task.ID] = task.SlotDemand()
	}

	update := make(map[ir.TaskID][]int, len(s.Tasks))
	for _, ts := range s.Tasks {
		update[ts.Task] = ts.Update
	}
	reaches := func(from, to ir.TaskID) bool {
		seen := map[ir.TaskID]bool{from: true}
		queue := []ir.TaskID{from}
		for len(queue) > 0 {
			task := queue[0]
			queue = queue[1:]
			for _, id := range update[task] {
				for _, c := range s.Barriers[id].Consumers {
					if c == to {
						return true
					}
					if !seen[c] {
						seen[c] = true
						queue = append(queue, c)
					}
				}
			}
		}
		return false
	}

	for _, task := range g.Tasks {
		for _, dep := range task.DependsOn {
			assert.Less(t, timeOf[dep], timeOf[task.ID], "edge %d->%d", dep, task.ID)
			if accel[dep] && accel[task.ID] {
				assert.True(t, reaches(dep, task.ID), "edge %d->%d has no barrier path", dep, task.ID)
			}
		}
	}

	type span struct{ start, end int }
	spans := make(map[int][]span)
	for _, b := range s.Barriers {
		total := 0
		sp := span{start: -1}
		for _, p := range b.Producers {
			total += slots[p]
			if sp.start < 0 || timeOf[p] < sp.start {
				sp.start = timeOf[p]
			}
		}
		for _, c := range b.Consumers {
			sp.end = max(sp.end, timeOf[c])
		}
		assert.LessOrEqual(t, total, target.SlotsPerBarrier, "barrier %d producer slots", b.ID)
		require.GreaterOrEqual(t, b.PhysicalID, 0)
		require.Less(t, b.PhysicalID, target.BarrierCount)
		spans[b.PhysicalID] = append(spans[b.PhysicalID], sp)
	}
	for p, list := range spans {
		slices.SortFunc(list, func(a, b span) int { return a.start - b.start })
		for i := 1; i < len(list); i++ {
			assert.LessOrEqual(t, list[i-1].end, list[i].start,
				"physical barrier %d reused before its consumers issued", p)
		}
	}
}

// TestCompile_Errors tests that failures carry their code and no schedule.
func TestCompile_Errors(t *testing.T) {
	tooWide := testutil.Chain(2)
	tooWide.Tasks[0].Slots = 257

	cyclic := testutil.Chain(2)
	cyclic.Tasks[0].DependsOn = []ir.TaskID{1}

	tests := []struct {
		name   string
		graph  ir.Graph
		target ir.Target
		code   ir.ErrorCode
		stage  string
	}{
		{"infeasible demand", tooWide, testutil.Target(4, 256), ir.ErrCodeInfeasibleDemand, StageFeasibility},
		{"cycle", cyclic, testutil.Target(4, 256), ir.ErrCodeDependencyCycle, StageValidate},
		{"invalid target", testutil.Chain(2), testutil.Target(0, 256), ir.ErrCodeInvalidTarget, StageValidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession().Compile(context.Background(), tt.graph, tt.target)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Equal(t, tt.code, ir.CodeOf(err))
			assert.Contains(t, err.Error(), "stage "+tt.stage)
		})
	}
}

// TestCompile_Deterministic tests identical hashes across sessions.
func TestCompile_Deterministic(t *testing.T) {
	g := testutil.Layered(70, 3, 5)
	target := testutil.Target(4, 2)

	a, err := NewSession().Compile(context.Background(), g, target)
	require.NoError(t, err)
	b, err := NewSession().Compile(context.Background(), g, target)
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a, b)
}

// TestCompile_ControlEdges tests host and overlap edges in the output.
func TestCompile_ControlEdges(t *testing.T) {
	g := ir.Graph{Name: "mixed", Tasks: []ir.Task{
		testutil.Acc(0),
		testutil.Host(1, 0),
		testutil.Acc(2, 1),
		testutil.Acc(3),
	}}
	g.Tasks[2].Buffers = []ir.MemoryRange{{Space: "ddr", Offset: 0, Length: 16}}
	g.Tasks[3].Buffers = []ir.MemoryRange{{Space: "ddr", Offset: 8, Length: 16}}
	target := testutil.Target(2, 4)
	target.ControlEdgeSpaces = []string{"ddr"}

	s, err := NewSession().Compile(context.Background(), g, target)
	require.NoError(t, err)

	assert.Contains(t, s.ControlEdges, ir.ControlEdge{From: 0, To: 1, Reason: ir.EdgeDependency})
	assert.Contains(t, s.ControlEdges, ir.ControlEdge{From: 1, To: 2, Reason: ir.EdgeDependency})
	assert.Contains(t, s.ControlEdges, ir.ControlEdge{From: 3, To: 2, Reason: ir.EdgeMemoryOverlap, Space: "ddr"})
}

// TestSession_NotReentrant tests that re-entering a running session fails.
func TestSession_NotReentrant(t *testing.T) {
	var s *Session
	p := NewBuilder().
		Then(NewStage("reenter", func(ctx context.Context, c *Context) error {
			_, err := s.Compile(ctx, c.Graph, c.Target)
			return err
		})).
		Build()
	s = NewSession(WithPipeline(p), WithLogger(discard()))

	_, err := s.Compile(context.Background(), testutil.Chain(1), testutil.Target(1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.False(t, s.running.Load(), "session is released after the outer call")
}

// TestPipeline_Cancelled tests that a cancelled context stops before the first stage.
func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSession().Compile(ctx, testutil.Chain(2), testutil.Target(2, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRetryLowering tests the barrier-count retry loop.
func TestRetryLowering(t *testing.T) {
	lowering := ir.NewError(ir.ErrCodeBarrierLowering, "pool exhausted")

	var tried []int
	n, err := retryLowering(4, discard(), func(n int) error {
		tried = append(tried, n)
		if n > 2 {
			return lowering
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{4, 3, 2}, tried)

	tried = nil
	_, err = retryLowering(4, discard(), func(n int) error {
		tried = append(tried, n)
		return ir.NewError(ir.ErrCodeInternal, "broken")
	})
	assert.True(t, ir.IsInternal(err))
	assert.Equal(t, []int{4}, tried, "only lowering failures are retried")

	_, err = retryLowering(3, discard(), func(int) error { return lowering })
	require.Error(t, err)
	var ce *ir.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ir.ErrCodeBarrierLowering, ce.Code)
	assert.Contains(t, ce.Details["last_error"], "pool exhausted")
}

// TestCompileAll tests parallel compilation of independent graphs.
func TestCompileAll(t *testing.T) {
	jobs := []Job{
		{Graph: testutil.Chain(5), Target: testutil.Target(2, 1)},
		{Graph: testutil.Diamond(), Target: testutil.Target(4, 256)},
		{Graph: testutil.ParallelChains(), Target: testutil.Target(4, 256)},
	}
	results, err := CompileAll(context.Background(), jobs, WithLogger(discard()))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "chain-5", results[0].Graph)
	assert.Equal(t, "diamond", results[1].Graph)
	assert.Equal(t, "parallel", results[2].Graph)

	single, err := NewSession().Compile(context.Background(), jobs[1].Graph, jobs[1].Target)
	require.NoError(t, err)
	assert.Equal(t, single.Hash, results[1].Hash)

	bad := testutil.Chain(2)
	bad.Tasks[1].Slots = 1000
	_, err = CompileAll(context.Background(), append(jobs, Job{Graph: bad, Target: testutil.Target(4, 256)}))
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeInfeasibleDemand, ir.CodeOf(err))
}
