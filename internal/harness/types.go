package harness

import "github.com/roach88/bsched/internal/ir"

// Result is the outcome of a scenario execution.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass indicates overall success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Schedule is the compiled schedule, nil when compilation failed.
	Schedule *ir.Schedule `json:"schedule,omitempty"`

	// CompileErr is the compilation error, if any.
	CompileErr error `json:"-"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
