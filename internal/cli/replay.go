package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bsched/internal/graphio"
	"github.com/roach88/bsched/internal/ir"
	"github.com/roach88/bsched/internal/pipeline"
	"github.com/roach88/bsched/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult reports whether a stored run reproduces.
type ReplayResult struct {
	RunID         string `json:"run_id"`
	Graph         string `json:"graph"`
	GraphMatches  bool   `json:"graph_matches"`  // graph file hashes like the stored graph
	Intact        bool   `json:"intact"`         // stored rows rehash to the stored hash
	Deterministic bool   `json:"deterministic"`  // recompilation reproduces the stored hash
	StoredHash    string `json:"stored_hash"`
	ReplayHash    string `json:"replay_hash"`
}

// OK reports whether every check passed.
func (r ReplayResult) OK() bool {
	return r.GraphMatches && r.Intact && r.Deterministic
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id> <graph>",
		Short: "Recompile a stored run and verify determinism",
		Long: `Recompile a graph with the target of a stored run and compare the result
with the stored schedule.

Three checks are made: the graph file must hash like the stored graph, the
stored rows must rebuild a schedule with the stored hash, and the new
compilation must produce that same hash.

Exit codes:
  0 - The run reproduces
  1 - Determinism verification failed
  2 - Command error (database not found, unknown run, compile error)

Examples:
  bsched replay --db ./bsched.db 0190c7c4-... model.yaml
  bsched replay --db ./bsched.db 0190c7c4-... model.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, runID, graphPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(graphio.ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	stored, err := st.ReadSchedule(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read schedule", err)
	}

	g, err := graphio.LoadGraph(graphPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	graphHash, err := ir.GraphHash(g)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	rehash, err := ir.ScheduleHash(stored)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	replayed, err := pipeline.NewSession(pipeline.WithLogger(logger)).Compile(ctx, g, run.Target)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	result := ReplayResult{
		RunID:         runID,
		Graph:         g.Name,
		GraphMatches:  graphHash == run.GraphHash,
		Intact:        rehash == run.ScheduleHash,
		Deterministic: replayed.Hash == run.ScheduleHash,
		StoredHash:    run.ScheduleHash,
		ReplayHash:    replayed.Hash,
	}
	formatter.VerboseLog("Stored rows rehash to %s", rehash)

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.OK() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if !result.OK() {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	fmt.Fprintf(w, "Replay of run %s (%s)\n", result.RunID, result.Graph)
	fmt.Fprintf(w, "  %s graph matches stored graph\n", mark(result.GraphMatches))
	fmt.Fprintf(w, "  %s stored schedule intact\n", mark(result.Intact))
	fmt.Fprintf(w, "  %s recompilation reproduces %s\n", mark(result.Deterministic), result.StoredHash)
	if !result.Deterministic {
		fmt.Fprintf(w, "    got %s\n", result.ReplayHash)
	}
	fmt.Fprintln(w)

	if result.OK() {
		fmt.Fprintln(w, "✓ Run verified deterministic")
		return nil
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
