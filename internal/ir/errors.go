package ir

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorCode categorizes compile errors.
type ErrorCode string

const (
	// ErrCodeInvalidGraph indicates a malformed graph (duplicate ids, unknown dependencies).
	ErrCodeInvalidGraph ErrorCode = "INVALID_GRAPH"

	// ErrCodeInvalidTarget indicates unusable architectural constants.
	ErrCodeInvalidTarget ErrorCode = "INVALID_TARGET"

	// ErrCodeDependencyCycle indicates the dependency graph is not acyclic.
	ErrCodeDependencyCycle ErrorCode = "DEPENDENCY_CYCLE"

	// ErrCodeInfeasibleDemand indicates a task demand exceeds total capacity.
	ErrCodeInfeasibleDemand ErrorCode = "INFEASIBLE_DEMAND"

	// ErrCodeInternal indicates a broken invariant between scheduler stages.
	ErrCodeInternal ErrorCode = "INTERNAL_CONSISTENCY"

	// ErrCodeUnderSynchronized indicates a dependency lost its barrier coverage.
	ErrCodeUnderSynchronized ErrorCode = "UNDER_SYNCHRONIZED"

	// ErrCodeBarrierLowering indicates virtual barriers do not fit the physical pool.
	ErrCodeBarrierLowering ErrorCode = "BARRIER_LOWERING"
)

// NoTask marks a CompileError that is not about a specific task.
const NoTask TaskID = -1

// CompileError is a fatal error raised by a scheduling stage.
//
// Every CompileError aborts compilation: a partially scheduled graph never
// reaches the serializer.
type CompileError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Task identifies the affected task, or NoTask.
	Task TaskID

	// Barrier identifies the affected virtual barrier, or -1.
	Barrier int

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	switch {
	case e.Task != NoTask && e.Barrier >= 0:
		return fmt.Sprintf("%s: %s (task=%d, barrier=%d)", e.Code, e.Message, e.Task, e.Barrier)
	case e.Task != NoTask:
		return fmt.Sprintf("%s: %s (task=%d)", e.Code, e.Message, e.Task)
	case e.Barrier >= 0:
		return fmt.Sprintf("%s: %s (barrier=%d)", e.Code, e.Message, e.Barrier)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Infeasible reports whether the error is an infeasible configuration
// (cycle, unsatisfiable demand, invalid input) rather than a compiler bug.
func (e *CompileError) Infeasible() bool {
	switch e.Code {
	case ErrCodeInvalidGraph, ErrCodeInvalidTarget, ErrCodeDependencyCycle,
		ErrCodeInfeasibleDemand, ErrCodeBarrierLowering:
		return true
	}
	return false
}

// NewError creates a CompileError that is not tied to a task or barrier.
func NewError(code ErrorCode, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Task:    NoTask,
		Barrier: -1,
	}
}

// NewTaskError creates a CompileError about one task.
func NewTaskError(code ErrorCode, task TaskID, format string, args ...any) *CompileError {
	e := NewError(code, format, args...)
	e.Task = task
	return e
}

// NewInfeasibleDemandError creates the error for a demand that can never be met.
func NewInfeasibleDemandError(task TaskID, resource string, demand, capacity int64) *CompileError {
	e := NewTaskError(ErrCodeInfeasibleDemand, task,
		"demand of %d %s exceeds total capacity %d", demand, resource, capacity)
	e.Details = map[string]string{
		"resource": resource,
		"demand":   strconv.FormatInt(demand, 10),
		"capacity": strconv.FormatInt(capacity, 10),
	}
	return e
}

// CodeOf returns the code of a CompileError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInfeasible returns true if err is an infeasible-configuration error.
// Uses errors.As to handle wrapped errors.
func IsInfeasible(err error) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Infeasible()
	}
	return false
}

// IsInternal returns true if err reports a broken internal invariant.
func IsInternal(err error) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return !ce.Infeasible()
	}
	return false
}

// IsCycle returns true if err reports a dependency cycle.
func IsCycle(err error) bool {
	return CodeOf(err) == ErrCodeDependencyCycle
}
