package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bsched/internal/graphio"
	"github.com/roach88/bsched/internal/harness"
	"github.com/roach88/bsched/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "List stored runs or print one stored schedule",
		Long: `Without a run id, list the runs stored in the database in insertion
order. With a run id, print the stored schedule of that run.

Exit codes:
  0 - Success
  2 - Command error (database not found, unknown run)

Examples:
  bsched show --db ./bsched.db
  bsched show --db ./bsched.db 0190c7c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, args []string, cmd *cobra.Command) error {
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

	if len(args) == 0 {
		runs, err := st.ListRuns(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(formatter.Writer, "No runs found in database.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(formatter.Writer, "%d %s %s target=%s barrier_count=%d hash=%s\n",
				r.Seq, r.ID, r.Graph, r.Target.Name, r.BarrierCount, r.ScheduleHash)
		}
		return nil
	}

	s, err := st.ReadSchedule(cmd.Context(), args[0])
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(graphio.ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(s)
	}
	fmt.Fprintf(formatter.Writer, "run: %s\nhash: %s\n", args[0], s.Hash)
	return harness.RenderSchedule(formatter.Writer, s)
}
