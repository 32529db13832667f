package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bsched/internal/barrier"
	"github.com/roach88/bsched/internal/ir"
)

// Run is the summary row of one stored compilation.
type Run struct {
	ID               string    `json:"id"`
	Seq              int64     `json:"seq"`
	Graph            string    `json:"graph"`
	GraphHash        string    `json:"graph_hash"`
	Target           ir.Target `json:"target"`
	BarrierCount     int       `json:"barrier_count"`
	ScheduleHash     string    `json:"schedule_hash"`
	ScheduleVersion  string    `json:"schedule_version"`
	SchedulerVersion string    `json:"scheduler_version"`
}

const runColumns = `id, seq, graph, graph_hash, target, barrier_count, schedule_hash, schedule_version, scheduler_version`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r      Run
		target string
	)
	if err := row.Scan(&r.ID, &r.Seq, &r.Graph, &r.GraphHash, &target, &r.BarrierCount,
		&r.ScheduleHash, &r.ScheduleVersion, &r.SchedulerVersion); err != nil {
		return Run{}, err
	}
	t, err := unmarshalTarget(target)
	if err != nil {
		return Run{}, err
	}
	r.Target = t
	return r, nil
}

// ReadRun returns the summary of one run.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run in insertion order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC, id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSchedule rebuilds the schedule of a run. Wait/update attachments and
// the linear order are derived from the stored barriers and ops.
func (s *Store) ReadSchedule(ctx context.Context, id string) (*ir.Schedule, error) {
	run, err := s.ReadRun(ctx, id)
	if err != nil {
		return nil, err
	}

	ops, err := s.readOps(ctx, id)
	if err != nil {
		return nil, err
	}
	barriers, err := s.readBarriers(ctx, id)
	if err != nil {
		return nil, err
	}
	edges, err := s.readControlEdges(ctx, id)
	if err != nil {
		return nil, err
	}

	order := barrier.LinearOrder(ops)
	return &ir.Schedule{
		Graph:        run.Graph,
		Target:       run.Target,
		BarrierCount: run.BarrierCount,
		Ops:          ops,
		Barriers:     barriers,
		Tasks:        rebuildSync(ops, order, barriers),
		Order:        order,
		ControlEdges: edges,
		Hash:         run.ScheduleHash,
	}, nil
}

func (s *Store) readOps(ctx context.Context, runID string) ([]ir.ScheduledOp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task, time, barrier_index, slots
		FROM scheduled_ops
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ops: %w", err)
	}
	defer rows.Close()

	ops := []ir.ScheduledOp{}
	for rows.Next() {
		var (
			op   ir.ScheduledOp
			task int
		)
		if err := rows.Scan(&task, &op.Time, &op.BarrierIndex, &op.Slots); err != nil {
			return nil, fmt.Errorf("scan op: %w", err)
		}
		op.Task = ir.TaskID(task)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ops: %w", err)
	}
	return ops, nil
}

func (s *Store) readBarriers(ctx context.Context, runID string) ([]ir.Barrier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idx, physical_id, producers, consumers
		FROM barriers
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query barriers: %w", err)
	}
	defer rows.Close()

	barriers := []ir.Barrier{}
	for rows.Next() {
		var (
			b                    ir.Barrier
			producers, consumers string
		)
		if err := rows.Scan(&b.ID, &b.Index, &b.PhysicalID, &producers, &consumers); err != nil {
			return nil, fmt.Errorf("scan barrier: %w", err)
		}
		if b.Producers, err = unmarshalTaskIDs(producers); err != nil {
			return nil, err
		}
		if b.Consumers, err = unmarshalTaskIDs(consumers); err != nil {
			return nil, err
		}
		barriers = append(barriers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate barriers: %w", err)
	}
	return barriers, nil
}

func (s *Store) readControlEdges(ctx context.Context, runID string) ([]ir.ControlEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_task, to_task, reason, space
		FROM control_edges
		WHERE run_id = ?
		ORDER BY from_task ASC, to_task ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query control edges: %w", err)
	}
	defer rows.Close()

	edges := []ir.ControlEdge{}
	for rows.Next() {
		var (
			e        ir.ControlEdge
			from, to int
			reason   string
		)
		if err := rows.Scan(&from, &to, &reason, &e.Space); err != nil {
			return nil, fmt.Errorf("scan control edge: %w", err)
		}
		e.From, e.To, e.Reason = ir.TaskID(from), ir.TaskID(to), ir.ControlEdgeReason(reason)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate control edges: %w", err)
	}
	return edges, nil
}

// rebuildSync derives each task's wait and update lists from barriers.
func rebuildSync(ops []ir.ScheduledOp, order []ir.TaskID, barriers []ir.Barrier) []ir.TaskSync {
	timeOf := make(map[ir.TaskID]int, len(ops))
	for _, op := range ops {
		timeOf[op.Task] = op.Time
	}
	wait := make(map[ir.TaskID][]int)
	update := make(map[ir.TaskID][]int)
	// barriers are ordered by id, so the lists come out sorted.
	for _, b := range barriers {
		for _, p := range b.Producers {
			update[p] = append(update[p], b.ID)
		}
		for _, c := range b.Consumers {
			wait[c] = append(wait[c], b.ID)
		}
	}

	out := make([]ir.TaskSync, len(order))
	for i, task := range order {
		ts := ir.TaskSync{Task: task, Time: timeOf[task], Wait: wait[task], Update: update[task]}
		if ts.Wait == nil {
			ts.Wait = []int{}
		}
		if ts.Update == nil {
			ts.Update = []int{}
		}
		out[i] = ts
	}
	return out
}
