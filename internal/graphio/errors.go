package graphio

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes shared by the loaders and the CLI.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeUnsupported = "E002" // unsupported file extension
	ErrCodeNoFiles     = "E003" // no graph files found
	ErrCodeLoadFailed  = "E004" // YAML decode failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema check failed
)

// LoadError is a graph file error, with a source position when known.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeBuildFailed, Field: "cue", Message: err.Error()}
	}

	// Return first error with position info
	first := errs[0]
	le := &LoadError{Code: ErrCodeBuildFailed, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
