package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/ir"
)

func TestPreset(t *testing.T) {
	target, err := Preset(DefaultPreset)
	require.NoError(t, err)
	assert.Equal(t, 4, target.BarrierCount)
	assert.Equal(t, 256, target.SlotsPerBarrier)
	require.NoError(t, Validate(target))

	// Presets are copied, mutation must not leak.
	target.MemoryCapacity["cmx"] = 1
	again, err := Preset(DefaultPreset)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), again.MemoryCapacity["cmx"])
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("nope")
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeInvalidTarget, ir.CodeOf(err))
	assert.Contains(t, err.Error(), "full-64")
}

func TestPresetNames_Sorted(t *testing.T) {
	assert.Equal(t, []string{"edge-4", "edge-8", "full-64"}, PresetNames())
}

func TestParseTarget(t *testing.T) {
	data := []byte(`
name: tiny
barrier_count: 2
slots_per_barrier: 1
memory_capacity:
  cmx: 1024
control_edge_spaces: [ddr]
`)
	target, err := ParseTarget(data)
	require.NoError(t, err)
	assert.Equal(t, "tiny", target.Name)
	assert.Equal(t, 2, target.BarrierCount)
	assert.Equal(t, 1, target.SlotsPerBarrier)
	assert.Equal(t, int64(1024), target.MemoryCapacity["cmx"])
	assert.Equal(t, []string{"ddr"}, target.ControlEdgeSpaces)
}

func TestParseTarget_UnknownField(t *testing.T) {
	_, err := ParseTarget([]byte("name: x\nbarriers: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse target YAML")
}

func TestLoadTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "target.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: f\nbarrier_count: 3\nslots_per_barrier: 8\n"), 0o644))

	target, err := LoadTarget(path)
	require.NoError(t, err)
	assert.Equal(t, 3, target.BarrierCount)

	_, err = LoadTarget(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		target ir.Target
	}{
		{"no barriers", ir.Target{BarrierCount: 0, SlotsPerBarrier: 1}},
		{"no slots", ir.Target{BarrierCount: 1, SlotsPerBarrier: 0}},
		{"bad percent", ir.Target{BarrierCount: 1, SlotsPerBarrier: 1, UtilizationWarnPercent: 101}},
		{"negative capacity", ir.Target{BarrierCount: 1, SlotsPerBarrier: 1,
			MemoryCapacity: map[string]int64{"cmx": -1}}},
		{"space in both", ir.Target{BarrierCount: 1, SlotsPerBarrier: 1,
			MemoryCapacity: map[string]int64{"ddr": 10}, ControlEdgeSpaces: []string{"ddr"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.target)
			require.Error(t, err)
			assert.Equal(t, ir.ErrCodeInvalidTarget, ir.CodeOf(err))
		})
	}
}

func TestOverride(t *testing.T) {
	base, err := Preset("edge-8")
	require.NoError(t, err)

	got := Override(base, 2, 0)
	assert.Equal(t, 2, got.BarrierCount)
	assert.Equal(t, 256, got.SlotsPerBarrier)
	assert.Equal(t, 8, base.BarrierCount)

	got = Override(base, 0, 16)
	assert.Equal(t, 8, got.BarrierCount)
	assert.Equal(t, 16, got.SlotsPerBarrier)
}
