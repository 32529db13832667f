package harness

import (
	"fmt"

	"github.com/roach88/bsched/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // assertion type for categorization
	Expected string // human-readable expected outcome
	Actual   string // human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate checks one assertion. sched is nil when compileErr is set.
func evaluate(a Assertion, sched *ir.Schedule, compileErr error) error {
	if a.Type == AssertInfeasible {
		return assertInfeasible(a, compileErr)
	}
	if sched == nil {
		return &AssertionError{Type: a.Type, Expected: "a schedule", Actual: "compilation failure"}
	}

	switch a.Type {
	case AssertBarrierCount:
		return assertBarrierCount(a, sched)
	case AssertSameTime:
		return assertSameTime(a, sched)
	case AssertBefore:
		return assertBefore(a, sched)
	case AssertWaitsOnce:
		return assertWaitsOnce(a, sched)
	case AssertControlEdge:
		return assertControlEdge(a, sched)
	case AssertNoControlEdge:
		return assertNoControlEdge(a, sched)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertBarrierCount(a Assertion, s *ir.Schedule) error {
	if len(s.Barriers) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d barriers", a.Count),
			Actual:   fmt.Sprintf("%d barriers", len(s.Barriers)),
		}
	}
	return nil
}

// times looks up the time of every listed task.
func times(a Assertion, s *ir.Schedule) ([]int, error) {
	out := make([]int, len(a.Tasks))
	for i, task := range a.Tasks {
		op, ok := opAt(s, task)
		if !ok {
			return nil, &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("task %d to be scheduled", task),
				Actual:   "no op",
			}
		}
		out[i] = op.Time
	}
	return out, nil
}

func assertSameTime(a Assertion, s *ir.Schedule) error {
	ts, err := times(a, s)
	if err != nil {
		return err
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] != ts[0] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("tasks %v at one time", a.Tasks),
				Actual:   fmt.Sprintf("times %v", ts),
			}
		}
	}
	return nil
}

func assertBefore(a Assertion, s *ir.Schedule) error {
	ts, err := times(a, s)
	if err != nil {
		return err
	}
	for i := 1; i < len(ts); i++ {
		if ts[i-1] >= ts[i] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("tasks %v at increasing times", a.Tasks),
				Actual:   fmt.Sprintf("times %v", ts),
			}
		}
	}
	return nil
}

func assertWaitsOnce(a Assertion, s *ir.Schedule) error {
	ts, ok := syncOf(s, a.Task)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("task %d in the schedule", a.Task),
			Actual:   "not found",
		}
	}
	if len(ts.Wait) != 1 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("task %d to wait on one barrier", a.Task),
			Actual:   fmt.Sprintf("waits on %v", ts.Wait),
		}
	}
	return nil
}

func findEdge(s *ir.Schedule, from, to ir.TaskID) (ir.ControlEdge, bool) {
	for _, e := range s.ControlEdges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return ir.ControlEdge{}, false
}

func assertControlEdge(a Assertion, s *ir.Schedule) error {
	e, ok := findEdge(s, a.From, a.To)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("edge %d -> %d", a.From, a.To),
			Actual:   "no such edge",
		}
	}
	if a.Reason != "" && e.Reason != a.Reason {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("edge %d -> %d with reason %s", a.From, a.To, a.Reason),
			Actual:   fmt.Sprintf("reason %s", e.Reason),
		}
	}
	return nil
}

func assertNoControlEdge(a Assertion, s *ir.Schedule) error {
	if e, ok := findEdge(s, a.From, a.To); ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("no edge %d -> %d", a.From, a.To),
			Actual:   fmt.Sprintf("edge with reason %s", e.Reason),
		}
	}
	return nil
}

func assertInfeasible(a Assertion, compileErr error) error {
	if compileErr == nil {
		return &AssertionError{Type: a.Type, Expected: "compilation failure", Actual: "a schedule"}
	}
	if !ir.IsInfeasible(compileErr) {
		return &AssertionError{
			Type:     a.Type,
			Expected: "an infeasible configuration",
			Actual:   compileErr.Error(),
		}
	}
	if a.Code != "" && ir.CodeOf(compileErr) != a.Code {
		return &AssertionError{
			Type:     a.Type,
			Expected: string(a.Code),
			Actual:   string(ir.CodeOf(compileErr)),
		}
	}
	return nil
}
