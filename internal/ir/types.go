package ir

import "strconv"

// TaskID is the stable unique identifier assigned to a task by the importer.
type TaskID int

// TaskKind names the executor a task runs on.
type TaskKind string

const (
	KindDMA      TaskKind = "dma"       // data movement engine
	KindNCE      TaskKind = "nce"       // neural compute engine
	KindActShave TaskKind = "act_shave" // activation shave
	KindUPA      TaskKind = "upa"       // host-side software kernel
)

// ValidTaskKinds defines allowed task kinds.
var ValidTaskKinds = map[TaskKind]bool{
	KindDMA:      true,
	KindNCE:      true,
	KindActShave: true,
	KindUPA:      true,
}

// MemoryRange is a buffer touched by a task inside one memory space.
// The covered addresses are [Offset, Offset+Length-1].
type MemoryRange struct {
	Space  string `json:"space" yaml:"space"`
	Offset int64  `json:"offset" yaml:"offset"`
	Length int64  `json:"length" yaml:"length"`
}

// End returns the last address covered by the range (inclusive).
func (r MemoryRange) End() int64 {
	return r.Offset + r.Length - 1
}

// Overlaps reports whether two ranges in the same space share an address.
func (r MemoryRange) Overlaps(o MemoryRange) bool {
	if r.Space != o.Space || r.Length <= 0 || o.Length <= 0 {
		return false
	}
	return r.Offset <= o.End() && o.Offset <= r.End()
}

// Task is an opaque unit of work produced by the upstream lowering stage.
type Task struct {
	ID          TaskID        `json:"id" yaml:"id"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	Kind        TaskKind      `json:"kind,omitempty" yaml:"kind,omitempty"`
	DependsOn   []TaskID      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Slots       int           `json:"slots,omitempty" yaml:"slots,omitempty"`       // barrier producer slots demanded
	Priority    *int          `json:"priority,omitempty" yaml:"priority,omitempty"` // upstream priority, lower runs first
	Accelerator bool          `json:"accelerator" yaml:"accelerator"`
	Buffers     []MemoryRange `json:"buffers,omitempty" yaml:"buffers,omitempty"`
}

// Label returns the task name, falling back to its id.
func (t Task) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return "task-" + strconv.Itoa(int(t.ID))
}

// SlotDemand returns the number of barrier producer slots the task occupies
// while in flight. Accelerator tasks always occupy at least one slot; host
// tasks never touch a barrier.
func (t Task) SlotDemand() int {
	if !t.Accelerator {
		return 0
	}
	if t.Slots < 1 {
		return 1
	}
	return t.Slots
}

// Graph is the finalized task graph handed to the scheduler.
type Graph struct {
	Name  string `json:"name" yaml:"name"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Target holds the architectural constants of the accelerator.
type Target struct {
	Name string `json:"name" yaml:"name"`

	// BarrierCount is the size of the physical barrier pool.
	BarrierCount int `json:"barrier_count" yaml:"barrier_count"`

	// SlotsPerBarrier is the maximum number of producer slots one barrier tracks.
	SlotsPerBarrier int `json:"slots_per_barrier" yaml:"slots_per_barrier"`

	// MemoryCapacity bounds the bytes simultaneously reserved per memory space.
	// Spaces not listed are unbounded.
	MemoryCapacity map[string]int64 `json:"memory_capacity,omitempty" yaml:"memory_capacity,omitempty"`

	// ControlEdgeSpaces lists memory spaces that are not barrier-visible;
	// overlapping buffers there are ordered with explicit control edges.
	ControlEdgeSpaces []string `json:"control_edge_spaces,omitempty" yaml:"control_edge_spaces,omitempty"`

	// UtilizationWarnPercent is the soft barrier utilization threshold that
	// triggers a warning. Zero disables the warning.
	UtilizationWarnPercent int `json:"utilization_warn_percent,omitempty" yaml:"utilization_warn_percent,omitempty"`
}

// NoBarrier is the barrier index of a task that does not use a barrier.
const NoBarrier = -1

// ScheduledOp is the list scheduler's decision for one task.
type ScheduledOp struct {
	Task         TaskID `json:"task"`
	Time         int    `json:"time"`
	BarrierIndex int    `json:"barrier_index"` // NoBarrier for host tasks
	Slots        int    `json:"slots"`
}

// Barrier is a synchronization object with producer and consumer tasks.
type Barrier struct {
	ID         int      `json:"id"`
	Index      int      `json:"index"`       // resource index the barrier was opened on
	PhysicalID int      `json:"physical_id"` // -1 until lowered
	Producers  []TaskID `json:"producers"`
	Consumers  []TaskID `json:"consumers"`
}

// TaskSync is the final wait/update attachment of one task.
type TaskSync struct {
	Task   TaskID `json:"task"`
	Time   int    `json:"time"`
	Wait   []int  `json:"wait"`
	Update []int  `json:"update"`
}

// ControlEdgeReason explains why a control edge was emitted.
type ControlEdgeReason string

const (
	EdgeDependency    ControlEdgeReason = "dependency"     // original edge with a host endpoint
	EdgeTimeSlot      ControlEdgeReason = "time_slot"      // host task ordering between adjacent time slots
	EdgeMemoryOverlap ControlEdgeReason = "memory_overlap" // overlapping buffers in a non-barrier-visible space
)

// ControlEdge is an explicit ordering dependency between two tasks.
type ControlEdge struct {
	From   TaskID            `json:"from"`
	To     TaskID            `json:"to"`
	Reason ControlEdgeReason `json:"reason"`
	Space  string            `json:"space,omitempty"`
}

// SyncEdge is a barrier-synchronized ordering the scheduler added on top of
// the graph edges.
type SyncEdge struct {
	From TaskID
	To   TaskID
}

// Schedule is the finalized output handed to the serializer.
type Schedule struct {
	Graph        string        `json:"graph"`
	Target       Target        `json:"target"`
	BarrierCount int           `json:"barrier_count"` // resource indices used by the list scheduler
	Ops          []ScheduledOp `json:"ops"`
	Barriers     []Barrier     `json:"barriers"`
	Tasks        []TaskSync    `json:"tasks"`
	Order        []TaskID      `json:"order"`
	ControlEdges []ControlEdge `json:"control_edges"`
	Hash         string        `json:"hash"`
}
