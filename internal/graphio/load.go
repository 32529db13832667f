// Package graphio reads task graph files.
//
// Graphs are written in YAML (.yaml, .yml) or CUE (.cue). CUE files are
// checked against an embedded #Graph schema before conversion, so type and
// range errors come back with a file position.
package graphio

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bsched/internal/ir"
)

// ParseYAML decodes a YAML graph. Unknown fields are rejected.
func ParseYAML(data []byte) (ir.Graph, error) {
	var g ir.Graph
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&g); err != nil {
		return ir.Graph{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	return g, nil
}

// LoadGraph reads a graph file, choosing the decoder by extension.
func LoadGraph(path string) (ir.Graph, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !isGraphExt(ext) {
		return ir.Graph{}, &LoadError{
			Code:    ErrCodeUnsupported,
			Message: fmt.Sprintf("unsupported graph file extension %q: %s", ext, path),
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ir.Graph{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph file not found: %s", path)}
	}
	if err != nil {
		return ir.Graph{}, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading graph file: %v", err)}
	}

	if ext == ".cue" {
		return ParseCUE(data, path)
	}
	g, err := ParseYAML(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Message = path + ": " + le.Message
		}
		return ir.Graph{}, err
	}
	return g, nil
}

// FindGraphFiles walks dir and returns the graph files it contains, sorted.
func FindGraphFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error accessing directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isGraphExt(strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no graph files found in %s", dir)}
	}
	slices.Sort(files)
	return files, nil
}

func isGraphExt(ext string) bool {
	switch ext {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}
