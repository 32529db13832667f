// Package ir provides the data model shared by every stage of the barrier
// scheduler.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the task graph, the
// schedule records and the error taxonomy at the bottom of the dependency
// order.
//
// Key design constraints:
//   - Tasks are immutable once handed to the scheduler
//   - Identity is the importer-assigned TaskID, never a pointer
//   - Logical time only (unit-delay schedule slots), never wall-clock
//   - All JSON and YAML tags use snake_case
package ir
