// Package scheduler implements the list scheduler.
//
// The scheduler walks the task graph in logical time. At every step it
// schedules the best-ranked ready task whose resources are free, or, when
// none fits, retires the earliest in-flight task. Every task takes one time
// unit, so a task scheduled at t completes at t+1 and only then releases its
// successors. This makes Time(A) < Time(B) hold for every edge A -> B.
//
// A barrier index stays taken until every consumer of the barrier opened on
// it has been scheduled. When that leaves nothing schedulable and nothing in
// flight, the best-ranked ready task takes over an index and the consumers
// still waiting there are ordered after it (see SyncEdges).
package scheduler

import (
	"container/heap"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/resource"
)

// Status is the lifecycle state of one task.
type Status int

const (
	NotReady Status = iota
	Ready
	Scheduled
	Completed
)

func (s Status) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Scheduled:
		return "scheduled"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Delay is the number of time units every task occupies.
const Delay = 1

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// Scheduler is a single-use list scheduler over one graph.
type Scheduler struct {
	graph        *depgraph.Graph
	target       ir.Target
	barrierCount int
	state        *resource.State
	logger       *slog.Logger

	demand   []resource.Demand
	rank     []int
	inDegree []int
	status   []Status
	timeOf   []int
	index    []int

	ready     []int // sorted by rank
	inFlight  completionHeap
	now       int
	ops       []ir.ScheduledOp
	syncEdges []ir.SyncEdge
	forced    map[int]forcedOrder
	warned    bool
}

// forcedOrder records what one takeover added, so it can be undone.
type forcedOrder struct {
	waiters []int
	edges   int
}

// New prepares a scheduler that uses barrierCount resource indices of the
// target. Demands that no idle target could ever satisfy are rejected here.
func New(g *depgraph.Graph, target ir.Target, barrierCount int, opts ...Option) (*Scheduler, error) {
	if barrierCount < 1 {
		return nil, ir.NewError(ir.ErrCodeInvalidTarget, "barrier count must be at least 1, got %d", barrierCount)
	}

	n := g.Len()
	s := &Scheduler{
		graph:        g,
		target:       target,
		barrierCount: barrierCount,
		state:        resource.NewState(target, barrierCount),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		demand:       make([]resource.Demand, n),
		rank:         AssignPriorities(g),
		inDegree:     g.InDegrees(),
		status:       make([]Status, n),
		timeOf:       make([]int, n),
		index:        make([]int, n),
		forced:       make(map[int]forcedOrder),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := 0; i < n; i++ {
		s.demand[i] = resource.DemandOf(g.Task(i))
		if g.Task(i).Accelerator {
			for _, succ := range g.Succs(i) {
				if g.Task(succ).Accelerator {
					s.demand[i].Consumers = append(s.demand[i].Consumers, g.ID(succ))
				}
			}
		}
		if err := s.state.CheckFeasible(g.ID(i), s.demand[i]); err != nil {
			return nil, err
		}
		s.timeOf[i] = -1
		s.index[i] = ir.NoBarrier
		if s.inDegree[i] == 0 {
			s.makeReady(i)
		}
	}
	return s, nil
}

// Run schedules every task and returns the ops in emission order.
func (s *Scheduler) Run() ([]ir.ScheduledOp, error) {
	for {
		_, more, err := s.Step()
		if err != nil {
			return nil, err
		}
		if !more {
			return s.Ops(), nil
		}
	}
}

// Step schedules the next task. It returns false once every task has been
// scheduled.
func (s *Scheduler) Step() (ir.ScheduledOp, bool, error) {
	for {
		if len(s.ops) == s.graph.Len() {
			return ir.ScheduledOp{}, false, nil
		}
		if i, ok := s.candidate(); ok {
			return s.schedule(i), true, nil
		}
		if s.inFlight.Len() > 0 {
			if err := s.retire(); err != nil {
				return ir.ScheduledOp{}, false, err
			}
			continue
		}
		if op, ok := s.takeover(); ok {
			return op, true, nil
		}
		return ir.ScheduledOp{}, false, s.stuck()
	}
}

// candidate returns the best-ranked ready task whose demand fits now.
func (s *Scheduler) candidate() (int, bool) {
	for _, i := range s.ready {
		if s.state.IsAvailable(s.graph.ID(i), s.demand[i]) {
			return i, true
		}
	}
	return 0, false
}

func (s *Scheduler) schedule(i int) ir.ScheduledOp {
	id := s.graph.ID(i)
	index, ok := s.state.Reserve(id, s.demand[i])
	if !ok {
		// candidate() checked availability on the same state.
		panic("scheduler: reservation failed for an available demand")
	}
	return s.commit(i, index)
}

// takeover unblocks an idle target whose barrier indices all wait on
// unscheduled consumers. The first ready task that can displace a barrier
// is issued on its index.
func (s *Scheduler) takeover() (ir.ScheduledOp, bool) {
	for _, i := range s.ready {
		if s.demand[i].Slots == 0 {
			continue
		}
		id := s.graph.ID(i)
		tk, ok := s.state.Takeover(id, s.demand[i])
		if !ok {
			continue
		}

		f := forcedOrder{edges: len(tk.Producers) + len(tk.Pending)}
		for _, p := range tk.Producers {
			s.syncEdges = append(s.syncEdges, ir.SyncEdge{From: p, To: id})
		}
		for _, d := range tk.Pending {
			s.syncEdges = append(s.syncEdges, ir.SyncEdge{From: id, To: d})
			j := s.graph.MustIndex(d)
			s.inDegree[j]++
			if s.status[j] == Ready {
				s.removeReady(j)
				s.status[j] = NotReady
			}
			f.waiters = append(f.waiters, j)
		}
		s.forced[i] = f

		s.logger.Debug("barrier index taken over",
			"task", id,
			"time", s.now,
			"barrier_index", tk.Index,
			"deferred", tk.Pending)
		return s.commit(i, tk.Index), true
	}
	return ir.ScheduledOp{}, false
}

func (s *Scheduler) commit(i, index int) ir.ScheduledOp {
	id := s.graph.ID(i)
	s.removeReady(i)
	s.status[i] = Scheduled
	s.timeOf[i] = s.now
	s.index[i] = index
	heap.Push(&s.inFlight, completion{time: s.now + Delay, task: i})

	op := ir.ScheduledOp{Task: id, Time: s.now, BarrierIndex: index, Slots: s.demand[i].Slots}
	s.ops = append(s.ops, op)

	s.logger.Debug("scheduled task",
		"task", id,
		"time", s.now,
		"barrier_index", index,
		"slots", op.Slots)
	s.checkUtilization()
	return op
}

// retire completes the earliest in-flight task and promotes its successors.
func (s *Scheduler) retire() error {
	c := heap.Pop(&s.inFlight).(completion)
	if c.time > s.now {
		s.now = c.time
		s.state.Advance(s.now)
	}
	id := s.graph.ID(c.task)
	if err := s.state.Release(id); err != nil {
		return err
	}
	s.status[c.task] = Completed

	for _, succ := range s.graph.Succs(c.task) {
		s.release(succ)
	}
	for _, succ := range s.forced[c.task].waiters {
		s.release(succ)
	}
	return nil
}

func (s *Scheduler) release(i int) {
	s.inDegree[i]--
	if s.inDegree[i] == 0 && s.status[i] == NotReady {
		s.makeReady(i)
	}
}

// Unschedule reverses the most recent scheduling decision, which must be
// for task and must not have completed yet: its resources, its heap entry,
// its op, any order it forced and its ready state.
func (s *Scheduler) Unschedule(task ir.TaskID) error {
	i, ok := s.graph.Index(task)
	if !ok {
		return ir.NewTaskError(ir.ErrCodeInternal, task, "unschedule of unknown task")
	}
	if s.status[i] != Scheduled {
		return ir.NewTaskError(ir.ErrCodeInternal, task,
			"unschedule of a task in state %s", s.status[i])
	}

	if n := len(s.ops); n == 0 || s.ops[n-1].Task != task {
		return ir.NewTaskError(ir.ErrCodeInternal, task,
			"only the most recent scheduling decision can be reversed")
	}

	pos := s.inFlight.find(i)
	if pos < 0 {
		return ir.NewTaskError(ir.ErrCodeInternal, task, "scheduled task missing from the completion heap")
	}
	heap.Remove(&s.inFlight, pos)
	if err := s.state.Unreserve(task); err != nil {
		return err
	}
	s.ops = s.ops[:len(s.ops)-1]
	if f, ok := s.forced[i]; ok {
		for _, j := range f.waiters {
			s.release(j)
		}
		s.syncEdges = s.syncEdges[:len(s.syncEdges)-f.edges]
		delete(s.forced, i)
	}
	s.timeOf[i] = -1
	s.index[i] = ir.NoBarrier
	s.makeReady(i)

	s.logger.Debug("unscheduled task", "task", task, "time", s.now)
	return nil
}

func (s *Scheduler) makeReady(i int) {
	s.status[i] = Ready
	pos, _ := slices.BinarySearchFunc(s.ready, s.rank[i], func(r, target int) int {
		return s.rank[r] - target
	})
	s.ready = slices.Insert(s.ready, pos, i)
}

func (s *Scheduler) removeReady(i int) {
	s.ready = slices.DeleteFunc(s.ready, func(r int) bool { return r == i })
}

// stuck builds the error for a state with remaining tasks, nothing in flight
// and nothing schedulable.
func (s *Scheduler) stuck() error {
	if len(s.ready) > 0 {
		i := s.ready[0]
		return ir.NewTaskError(ir.ErrCodeInfeasibleDemand, s.graph.ID(i),
			"ready task can never acquire its resources on an idle target")
	}
	for i, st := range s.status {
		if st == NotReady {
			return ir.NewTaskError(ir.ErrCodeDependencyCycle, s.graph.ID(i),
				"task never became ready")
		}
	}
	return ir.NewError(ir.ErrCodeInternal, "scheduler stalled with no pending work")
}

func (s *Scheduler) checkUtilization() {
	limit := s.target.UtilizationWarnPercent
	if limit <= 0 || s.warned {
		return
	}
	active := s.state.Barriers.ActiveCount()
	percent := active * 100 / s.barrierCount
	if percent > limit {
		s.warned = true
		s.logger.Warn("barrier utilization above threshold",
			"active", active,
			"barrier_count", s.barrierCount,
			"percent", percent,
			"threshold", limit,
			"time", s.now)
	}
}

// Ops returns a copy of the ops emitted so far.
func (s *Scheduler) Ops() []ir.ScheduledOp { return slices.Clone(s.ops) }

// SyncEdges returns the orderings added by takeovers. Every edge is
// synchronized through a barrier like a graph edge between accelerator
// tasks.
func (s *Scheduler) SyncEdges() []ir.SyncEdge { return slices.Clone(s.syncEdges) }

// Status returns the lifecycle state of task.
func (s *Scheduler) Status(task ir.TaskID) Status {
	i, ok := s.graph.Index(task)
	if !ok {
		return NotReady
	}
	return s.status[i]
}

// Now returns the current logical time.
func (s *Scheduler) Now() int { return s.now }

// Utilization returns the used slots per barrier index.
func (s *Scheduler) Utilization() []int { return s.state.Barriers.Utilization() }

// BarrierCount returns the number of resource indices in use.
func (s *Scheduler) BarrierCount() int { return s.barrierCount }
