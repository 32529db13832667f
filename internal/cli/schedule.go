package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bsched/internal/harness"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/pipeline"
	"github.com/roach88/bsched/internal/store"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Target   TargetOptions
	Database string // store compiled schedules here when set
	Output   string // output file path
}

// ScheduleOutput is the result for one graph.
type ScheduleOutput struct {
	Schedule  *ir.Schedule `json:"schedule"`
	GraphHash string       `json:"graph_hash"`
	RunID     string       `json:"run_id,omitempty"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule <graph>...",
		Short: "Schedule task graphs and derive their barriers",
		Long: `Schedule one or more task graphs (YAML or CUE) on a target.

Graphs are compiled in parallel. Each schedule lists the issue time and
barrier index of every task, the barriers that remain after redundancy
elimination with their physical ids, the wait/update attachment of every
task and the control edges.

Exit codes:
  0 - All graphs scheduled
  2 - Command error (unreadable graph, invalid target, compile error)

Examples:
  bsched schedule model.yaml
  bsched schedule model.cue --target edge-8 --slots 64
  bsched schedule a.yaml b.yaml --db ./bsched.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args, cmd)
		},
	}

	opts.Target.bind(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "store schedules in this SQLite database")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the schedule as JSON to this file (single graph only)")

	return cmd
}

func runSchedule(opts *ScheduleOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Output != "" && len(paths) != 1 {
		return formatter.Fail(ExitCommandError, fmt.Errorf("--output takes exactly one graph, got %d", len(paths)))
	}

	target, err := opts.Target.resolve()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	graphs, err := loadGraphs(paths)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Loaded %d graph(s), target %s (%d barriers, %d slots)",
		len(graphs), target.Name, target.BarrierCount, target.SlotsPerBarrier)

	jobs := make([]pipeline.Job, len(graphs))
	for i, g := range graphs {
		jobs[i] = pipeline.Job{Graph: g, Target: target}
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	schedules, err := pipeline.CompileAll(cmd.Context(), jobs, pipeline.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	results := make([]ScheduleOutput, len(schedules))
	for i, s := range schedules {
		hash, err := ir.GraphHash(graphs[i])
		if err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
		results[i] = ScheduleOutput{Schedule: s, GraphHash: hash}
	}

	if opts.Database != "" {
		if err := storeSchedules(cmd, opts.Database, results); err != nil {
			return formatter.Fail(ExitCommandError, err)
		}
	}

	if opts.Output != "" {
		if err := writeScheduleFile(results[0].Schedule, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	return outputScheduleSuccess(formatter, results, opts.Output)
}

// storeSchedules writes every schedule as a run and records the run ids.
func storeSchedules(cmd *cobra.Command, path string, results []ScheduleOutput) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range results {
		id, err := st.WriteSchedule(cmd.Context(), results[i].Schedule, results[i].GraphHash)
		if err != nil {
			return err
		}
		results[i].RunID = id
	}
	return nil
}

// writeScheduleFile writes the schedule as indented JSON.
// (canonical JSON without indentation is used only for hashing)
func writeScheduleFile(s *ir.Schedule, filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schedule: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// outputScheduleSuccess outputs the scheduled graphs.
func outputScheduleSuccess(formatter *OutputFormatter, results []ScheduleOutput, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(results)
	}

	w := formatter.Writer
	for _, r := range results {
		s := r.Schedule
		fmt.Fprintf(w, "✓ %s: %d task(s), %d barrier(s), %d control edge(s), barrier_count %d\n",
			s.Graph, len(s.Ops), len(s.Barriers), len(s.ControlEdges), s.BarrierCount)
		fmt.Fprintf(w, "  hash: %s\n", s.Hash)
		if r.RunID != "" {
			fmt.Fprintf(w, "  run: %s\n", r.RunID)
		}
		if formatter.Verbose {
			fmt.Fprintln(w)
			if err := harness.RenderSchedule(w, s); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote schedule to %s\n", outputFile)
	}
	return nil
}
