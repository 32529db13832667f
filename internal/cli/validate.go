package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bsched/internal/pipeline"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Target TargetOptions
}

// ValidationResult summarizes one valid graph.
type ValidationResult struct {
	Graph string `json:"graph"`
	Path  string `json:"path"`
	Tasks int    `json:"tasks"`
	Edges int    `json:"edges"`
	Depth int    `json:"depth"` // number of topological levels
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <graph>...",
		Short: "Validate task graphs without scheduling them",
		Long: `Validate task graphs (YAML or CUE) against a target.

Checks ids, kinds, dependencies and buffers, rejects dependency cycles and
reports task demands the target can never satisfy. No schedule is built.

Exit codes:
  0 - All graphs are valid
  2 - Command error (unreadable or invalid graph)

Examples:
  bsched validate model.yaml
  bsched validate model.cue --target full-64`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	opts.Target.bind(cmd)
	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	target, err := opts.Target.resolve()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	graphs, err := loadGraphs(paths)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	results := make([]ValidationResult, 0, len(graphs))
	for i, g := range graphs {
		session := pipeline.NewSession(pipeline.WithPipeline(pipeline.Check()), pipeline.WithLogger(logger))
		c, err := session.Run(cmd.Context(), g, target)
		if err != nil {
			return formatter.Fail(ExitCommandError, fmt.Errorf("%s: %w", paths[i], err))
		}

		edges := 0
		c.Deps.Edges(func(int, int) { edges++ })
		depth := 0
		for _, l := range c.Deps.Levels() {
			depth = max(depth, l+1)
		}
		results = append(results, ValidationResult{
			Graph: g.Name,
			Path:  paths[i],
			Tasks: c.Deps.Len(),
			Edges: edges,
			Depth: depth,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for _, r := range results {
		fmt.Fprintf(formatter.Writer, "✓ %s (%s): %d task(s), %d edge(s), depth %d\n",
			r.Graph, r.Path, r.Tasks, r.Edges, r.Depth)
	}
	return nil
}
