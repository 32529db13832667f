// Package harness runs schedule conformance scenarios.
//
// A scenario names a task graph, a target and a list of assertions about the
// schedule the compiler produces for them. Scenarios double as executable
// documentation of the scheduling properties: barrier counts, dependency
// ordering, consumer waits and control edges.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: diamond
//	description: "Two branches join on one barrier"
//	graph:
//	  name: diamond
//	  tasks:
//	    - { id: 0, kind: dma, accelerator: true, slots: 1 }
//	    - { id: 1, kind: dma, accelerator: true, slots: 1, depends_on: [0] }
//	target:
//	  preset: edge-4
//	assertions:
//	  - type: barrier_count
//	    count: 2
//	  - type: waits_once
//	    task: 3
//
// Instead of an inline graph, graph_file names a YAML or CUE graph relative
// to the scenario file. The target is either a preset (optionally
// overriding barrier_count and slots_per_barrier) or a full inline target.
//
// # Assertion Types
//
//   - barrier_count: the schedule has exactly count barriers
//   - same_time: all listed tasks run at the same time
//   - before: the listed tasks run at strictly increasing times
//   - waits_once: task waits on exactly one barrier
//   - control_edge: an edge from -> to exists, with reason if given
//   - no_control_edge: no edge from -> to exists
//   - infeasible: compilation fails, with code if given
//
// # Golden Files
//
// RunWithGolden renders the schedule as text and compares it against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
