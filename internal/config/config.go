// Package config resolves the architectural constants of a target.
//
// A target comes either from a built-in preset or from a YAML file. Both
// paths end in Validate, so every stage downstream can assume a usable
// barrier pool.
package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bsched/internal/ir"
)

// DefaultPreset is the target used when none is named.
const DefaultPreset = "edge-4"

// DefaultSlotsPerBarrier is the producer slot count of the stock presets.
const DefaultSlotsPerBarrier = 256

var presets = map[string]ir.Target{
	"edge-4": {
		Name:                   "edge-4",
		BarrierCount:           4,
		SlotsPerBarrier:        DefaultSlotsPerBarrier,
		MemoryCapacity:         map[string]int64{"cmx": 1 << 20},
		ControlEdgeSpaces:      []string{"ddr"},
		UtilizationWarnPercent: 90,
	},
	"edge-8": {
		Name:                   "edge-8",
		BarrierCount:           8,
		SlotsPerBarrier:        DefaultSlotsPerBarrier,
		MemoryCapacity:         map[string]int64{"cmx": 2 << 20},
		ControlEdgeSpaces:      []string{"ddr"},
		UtilizationWarnPercent: 90,
	},
	"full-64": {
		Name:                   "full-64",
		BarrierCount:           64,
		SlotsPerBarrier:        DefaultSlotsPerBarrier,
		MemoryCapacity:         map[string]int64{"cmx": 4 << 20},
		ControlEdgeSpaces:      []string{"ddr"},
		UtilizationWarnPercent: 90,
	},
}

// Preset returns a copy of a built-in target.
func Preset(name string) (ir.Target, error) {
	t, ok := presets[name]
	if !ok {
		return ir.Target{}, ir.NewError(ir.ErrCodeInvalidTarget,
			"unknown target preset %q (known: %v)", name, PresetNames())
	}
	return clone(t), nil
}

// PresetNames returns the built-in preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTarget reads a target YAML file. Unknown fields are rejected.
func LoadTarget(path string) (ir.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Target{}, fmt.Errorf("failed to read target file: %w", err)
	}
	return ParseTarget(data)
}

// ParseTarget decodes and validates a target YAML document.
func ParseTarget(data []byte) (ir.Target, error) {
	var t ir.Target
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return ir.Target{}, fmt.Errorf("failed to parse target YAML: %w", err)
	}
	if err := Validate(t); err != nil {
		return ir.Target{}, err
	}
	return t, nil
}

// Override replaces the barrier count and slot count when they are positive.
func Override(t ir.Target, barriers, slots int) ir.Target {
	t = clone(t)
	if barriers > 0 {
		t.BarrierCount = barriers
	}
	if slots > 0 {
		t.SlotsPerBarrier = slots
	}
	return t
}

// Validate checks that the target can host a schedule.
func Validate(t ir.Target) error {
	if t.BarrierCount < 1 {
		return ir.NewError(ir.ErrCodeInvalidTarget, "barrier_count must be at least 1, got %d", t.BarrierCount)
	}
	if t.SlotsPerBarrier < 1 {
		return ir.NewError(ir.ErrCodeInvalidTarget, "slots_per_barrier must be at least 1, got %d", t.SlotsPerBarrier)
	}
	if t.UtilizationWarnPercent < 0 || t.UtilizationWarnPercent > 100 {
		return ir.NewError(ir.ErrCodeInvalidTarget,
			"utilization_warn_percent must be within 0..100, got %d", t.UtilizationWarnPercent)
	}
	for space, capacity := range t.MemoryCapacity {
		if capacity < 0 {
			return ir.NewError(ir.ErrCodeInvalidTarget, "memory capacity of %q is negative", space)
		}
		if slices.Contains(t.ControlEdgeSpaces, space) {
			return ir.NewError(ir.ErrCodeInvalidTarget,
				"space %q is both capacity-bounded and a control-edge space", space)
		}
	}
	return nil
}

func clone(t ir.Target) ir.Target {
	if t.MemoryCapacity != nil {
		mc := make(map[string]int64, len(t.MemoryCapacity))
		for k, v := range t.MemoryCapacity {
			mc[k] = v
		}
		t.MemoryCapacity = mc
	}
	t.ControlEdgeSpaces = slices.Clone(t.ControlEdgeSpaces)
	return t
}
