package graphio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bsched/internal/ir"
)

func diamond() ir.Graph {
	acc := func(id ir.TaskID, kind ir.TaskKind, deps ...ir.TaskID) ir.Task {
		return ir.Task{ID: id, Kind: kind, Slots: 1, Accelerator: true, DependsOn: deps}
	}
	return ir.Graph{Name: "diamond", Tasks: []ir.Task{
		acc(0, ir.KindDMA),
		acc(1, ir.KindNCE, 0),
		acc(2, ir.KindNCE, 0),
		acc(3, ir.KindDMA, 1, 2),
	}}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadGraph_YAMLAndCUEAgree(t *testing.T) {
	fromYAML, err := LoadGraph("testdata/diamond.yaml")
	require.NoError(t, err)
	fromCUE, err := LoadGraph("testdata/diamond.cue")
	require.NoError(t, err)

	assert.Equal(t, diamond(), fromYAML)
	assert.Equal(t, diamond(), fromCUE)
}

func TestParseCUE_OptionalFields(t *testing.T) {
	g, err := ParseCUE([]byte(`
name: "opt"
tasks: [
	{id: 0, name: "host", kind: "upa"},
	{id: 1, accelerator: true, priority: 3, depends_on: [0],
	 buffers: [{space: "ddr", offset: 16, length: 32}]},
]
`), "opt.cue")
	require.NoError(t, err)
	require.Len(t, g.Tasks, 2)

	host := g.Tasks[0]
	assert.Equal(t, "host", host.Name)
	assert.Equal(t, ir.KindUPA, host.Kind)
	assert.False(t, host.Accelerator)
	assert.Nil(t, host.Priority)
	assert.Empty(t, host.DependsOn)

	acc := g.Tasks[1]
	assert.True(t, acc.Accelerator)
	require.NotNil(t, acc.Priority)
	assert.Equal(t, 3, *acc.Priority)
	assert.Equal(t, []ir.MemoryRange{{Space: "ddr", Offset: 16, Length: 32}}, acc.Buffers)
}

func TestParseCUE_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown kind", `name: "g", tasks: [{id: 0, kind: "gpu"}]`},
		{"negative id", `name: "g", tasks: [{id: -1}]`},
		{"float slots", `name: "g", tasks: [{id: 0, slots: 1.5}]`},
		{"unknown field", `name: "g", tasks: [], extra: 1`},
		{"zero length buffer", `name: "g", tasks: [{id: 0, buffers: [{space: "ddr", offset: 0, length: 0}]}]`},
		{"missing name", `tasks: []`},
		{"syntax error", `name: "g" tasks: [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE([]byte(tt.src), "bad.cue")
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, ErrCodeBuildFailed, le.Code)
		})
	}
}

func TestParseCUE_ErrorPosition(t *testing.T) {
	_, err := ParseCUE([]byte("name: \"g\"\ntasks: [{id: 0, kind: \"gpu\"}]\n"), "pos.cue")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.True(t, le.Pos.IsValid())
	assert.Contains(t, le.Error(), ErrCodeBuildFailed)
}

func TestParseYAML_UnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("name: g\ntask: []\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
}

func TestLoadGraph_Errors(t *testing.T) {
	_, err := LoadGraph(filepath.Join(t.TempDir(), "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	_, err = LoadGraph(writeFile(t, "graph.json", "{}"))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeUnsupported, le.Code)

	path := writeFile(t, "broken.yaml", "name: [")
	_, err = LoadGraph(path)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
	assert.Contains(t, le.Message, path)
}

func TestFindGraphFiles(t *testing.T) {
	files, err := FindGraphFiles("testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "diamond.cue"),
		filepath.Join("testdata", "diamond.yaml"),
	}, files)

	_, err = FindGraphFiles(t.TempDir())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)

	_, err = FindGraphFiles(filepath.Join(t.TempDir(), "nope"))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}
