package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bsched/internal/config"
	"github.com/roach88/bsched/internal/ir"
)

// Scenario defines a schedule conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the inline task graph.
	Graph *ir.Graph `yaml:"graph,omitempty"`

	// GraphFile is a YAML or CUE graph path, relative to the scenario file.
	// Exactly one of Graph and GraphFile must be set.
	GraphFile string `yaml:"graph_file,omitempty"`

	// Target selects the architectural constants.
	Target TargetSpec `yaml:"target"`

	// Assertions validate the compiled schedule.
	Assertions []Assertion `yaml:"assertions"`

	// dir is the directory of the scenario file, for graph_file resolution.
	dir string
}

// TargetSpec is a preset name or an inline target. With a preset, nonzero
// barrier_count and slots_per_barrier override the preset values.
type TargetSpec struct {
	Preset    string `yaml:"preset,omitempty"`
	ir.Target `yaml:",inline"`
}

// Resolve returns the concrete target. An empty TargetSpec selects the default
// preset.
func (ts TargetSpec) Resolve() (ir.Target, error) {
	if ts.Preset == "" && ts.Name == "" && ts.BarrierCount == 0 {
		ts.Preset = config.DefaultPreset
	}
	if ts.Preset != "" {
		t, err := config.Preset(ts.Preset)
		if err != nil {
			return ir.Target{}, err
		}
		t = config.Override(t, ts.BarrierCount, ts.SlotsPerBarrier)
		return t, config.Validate(t)
	}
	return ts.Target, config.Validate(ts.Target)
}

// Assertion validates one property of the compiled schedule.
type Assertion struct {
	// Type specifies the assertion type (see the Assert* constants).
	Type string `yaml:"type"`

	// Count is the expected barrier count (barrier_count).
	Count int `yaml:"count,omitempty"`

	// Tasks lists the tasks of same_time and before.
	Tasks []ir.TaskID `yaml:"tasks,omitempty"`

	// Task is the task of waits_once.
	Task ir.TaskID `yaml:"task,omitempty"`

	// From and To are the endpoints of control_edge and no_control_edge.
	From ir.TaskID `yaml:"from,omitempty"`
	To   ir.TaskID `yaml:"to,omitempty"`

	// Reason optionally narrows control_edge.
	Reason ir.ControlEdgeReason `yaml:"reason,omitempty"`

	// Code optionally narrows infeasible.
	Code ir.ErrorCode `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertBarrierCount  = "barrier_count"
	AssertSameTime      = "same_time"
	AssertBefore        = "before"
	AssertWaitsOnce     = "waits_once"
	AssertControlEdge   = "control_edge"
	AssertNoControlEdge = "no_control_edge"
	AssertInfeasible    = "infeasible"
)

// ExpectsFailure reports whether the scenario asserts a failed compilation.
func (s *Scenario) ExpectsFailure() bool {
	return slices.ContainsFunc(s.Assertions, func(a Assertion) bool {
		return a.Type == AssertInfeasible
	})
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	scenario.dir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario parses scenario YAML. A graph_file is resolved against the
// working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file of dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Graph == nil) == (s.GraphFile == "") {
		return fmt.Errorf("exactly one of graph and graph_file is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("at least one assertion is required")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBarrierCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for barrier_count", index)
		}
	case AssertSameTime, AssertBefore:
		if len(a.Tasks) < 2 {
			return fmt.Errorf("assertions[%d]: at least two tasks are required for %s", index, a.Type)
		}
	case AssertWaitsOnce, AssertInfeasible:
	case AssertControlEdge, AssertNoControlEdge:
		if a.From == a.To {
			return fmt.Errorf("assertions[%d]: from and to must differ for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
