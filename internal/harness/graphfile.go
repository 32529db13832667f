package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/bsched/internal/graphio"
	"github.com/roach88/bsched/internal/ir"
)

// GraphNotFoundError is returned when a scenario's graph_file doesn't exist.
type GraphNotFoundError struct {
	Scenario     string
	GraphFile    string
	ResolvedPath string
}

// Error implements the error interface.
func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf(
		"scenario %q references graph file %q which does not exist (resolved to: %s)",
		e.Scenario,
		e.GraphFile,
		e.ResolvedPath,
	)
}

// resolveGraph returns the inline graph or loads graph_file (YAML or CUE)
// relative to the scenario directory.
func resolveGraph(s *Scenario) (ir.Graph, error) {
	if s.Graph != nil {
		return *s.Graph, nil
	}

	path := s.GraphFile
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ir.Graph{}, &GraphNotFoundError{
			Scenario:     s.Name,
			GraphFile:    s.GraphFile,
			ResolvedPath: path,
		}
	}
	return graphio.LoadGraph(path)
}
