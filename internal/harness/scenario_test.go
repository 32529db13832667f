package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/config"
	"github.com/roach88/bsched/internal/ir"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/diamond.yaml")
	require.NoError(t, err)

	assert.Equal(t, "diamond", sc.Name)
	require.NotNil(t, sc.Graph)
	assert.Len(t, sc.Graph.Tasks, 4)
	assert.Equal(t, []ir.TaskID{1, 2}, sc.Graph.Tasks[3].DependsOn)
	assert.Equal(t, "edge-4", sc.Target.Preset)
	require.Len(t, sc.Assertions, 4)
	assert.Equal(t, AssertBarrierCount, sc.Assertions[0].Type)
	assert.Equal(t, 2, sc.Assertions[0].Count)
	assert.Equal(t, ir.TaskID(3), sc.Assertions[3].Task)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
graph: { name: g, tasks: [] }
assertion:
  - type: barrier_count
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "graph: { name: g, tasks: [] }\nassertions: [{ type: barrier_count }]\n",
			want:    "name is required",
		},
		{
			name:    "no graph",
			content: "name: x\nassertions: [{ type: barrier_count }]\n",
			want:    "exactly one of graph and graph_file",
		},
		{
			name:    "both graphs",
			content: "name: x\ngraph: { name: g, tasks: [] }\ngraph_file: g.yaml\nassertions: [{ type: barrier_count }]\n",
			want:    "exactly one of graph and graph_file",
		},
		{
			name:    "no assertions",
			content: "name: x\ngraph: { name: g, tasks: [] }\n",
			want:    "at least one assertion",
		},
		{
			name:    "unknown type",
			content: "name: x\ngraph: { name: g, tasks: [] }\nassertions: [{ type: trace_order }]\n",
			want:    `unknown assertion type "trace_order"`,
		},
		{
			name:    "same_time with one task",
			content: "name: x\ngraph: { name: g, tasks: [] }\nassertions: [{ type: same_time, tasks: [1] }]\n",
			want:    "at least two tasks",
		},
		{
			name:    "self edge",
			content: "name: x\ngraph: { name: g, tasks: [] }\nassertions: [{ type: control_edge, from: 1, to: 1 }]\n",
			want:    "from and to must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarios_SortedByName(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	assert.Equal(t, []string{"chain", "diamond", "infeasible", "mixed"}, names)
}

func TestLoadScenarios_EmptyDir(t *testing.T) {
	scenarios, err := LoadScenarios(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, scenarios)
}

func TestTargetSpec_Resolve(t *testing.T) {
	t.Run("empty selects default preset", func(t *testing.T) {
		got, err := TargetSpec{}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultPreset, got.Name)
	})

	t.Run("preset with overrides", func(t *testing.T) {
		got, err := TargetSpec{Preset: "edge-8", Target: ir.Target{BarrierCount: 2, SlotsPerBarrier: 3}}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, "edge-8", got.Name)
		assert.Equal(t, 2, got.BarrierCount)
		assert.Equal(t, 3, got.SlotsPerBarrier)
	})

	t.Run("inline", func(t *testing.T) {
		got, err := TargetSpec{Target: ir.Target{Name: "x", BarrierCount: 1, SlotsPerBarrier: 1}}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, "x", got.Name)
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, err := TargetSpec{Preset: "nope"}.Resolve()
		assert.Error(t, err)
	})

	t.Run("invalid inline", func(t *testing.T) {
		_, err := TargetSpec{Target: ir.Target{Name: "x", BarrierCount: 1}}.Resolve()
		assert.Equal(t, ir.ErrCodeInvalidTarget, ir.CodeOf(err))
	})
}

func TestResolveGraph_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "s.yaml", `
name: lost
graph_file: graphs/lost.yaml
assertions:
  - type: barrier_count
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = Run(sc)
	var notFound *GraphNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "lost", notFound.Scenario)
	assert.Equal(t, filepath.Join(dir, "graphs/lost.yaml"), notFound.ResolvedPath)
}
