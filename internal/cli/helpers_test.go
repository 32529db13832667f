package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const diamondYAML = `name: diamond
tasks:
  - { id: 0, kind: dma, accelerator: true, slots: 1 }
  - { id: 1, kind: nce, accelerator: true, slots: 1, depends_on: [0] }
  - { id: 2, kind: nce, accelerator: true, slots: 1, depends_on: [0] }
  - { id: 3, kind: dma, accelerator: true, slots: 1, depends_on: [1, 2] }
`

const chainYAML = `name: chain-3
tasks:
  - { id: 0, kind: dma, accelerator: true, slots: 1 }
  - { id: 1, kind: nce, accelerator: true, slots: 1, depends_on: [0] }
  - { id: 2, kind: dma, accelerator: true, slots: 1, depends_on: [1] }
`

const cycleYAML = `name: cycle
tasks:
  - { id: 0, accelerator: true, depends_on: [1] }
  - { id: 1, accelerator: true, depends_on: [0] }
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
