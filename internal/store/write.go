package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/bsched/internal/ir"
)

// WriteSchedule stores a compiled schedule as a new run and returns its id.
// The whole run is written in one transaction.
func (s *Store) WriteSchedule(ctx context.Context, sched *ir.Schedule, graphHash string) (string, error) {
	target, err := marshalTarget(sched.Target)
	if err != nil {
		return "", fmt.Errorf("write schedule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write schedule: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write schedule: next seq: %w", err)
	}

	id := s.ids.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, graph, graph_hash, target, barrier_count, schedule_hash, schedule_version, scheduler_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		sched.Graph,
		graphHash,
		target,
		sched.BarrierCount,
		sched.Hash,
		ir.ScheduleVersion,
		ir.SchedulerVersion,
	)
	if err != nil {
		return "", fmt.Errorf("write schedule: insert run: %w", err)
	}

	if err := writeOps(ctx, tx, id, sched.Ops); err != nil {
		return "", err
	}
	if err := writeBarriers(ctx, tx, id, sched.Barriers); err != nil {
		return "", err
	}
	if err := writeControlEdges(ctx, tx, id, sched.ControlEdges); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write schedule: commit: %w", err)
	}
	return id, nil
}

func writeOps(ctx context.Context, tx *sql.Tx, runID string, ops []ir.ScheduledOp) error {
	for pos, op := range ops {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_ops (run_id, position, task, time, barrier_index, slots)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, pos, int(op.Task), op.Time, op.BarrierIndex, op.Slots)
		if err != nil {
			return fmt.Errorf("write schedule: insert op %d: %w", op.Task, err)
		}
	}
	return nil
}

func writeBarriers(ctx context.Context, tx *sql.Tx, runID string, barriers []ir.Barrier) error {
	for _, b := range barriers {
		producers, err := marshalTaskIDs(b.Producers)
		if err != nil {
			return fmt.Errorf("write schedule: %w", err)
		}
		consumers, err := marshalTaskIDs(b.Consumers)
		if err != nil {
			return fmt.Errorf("write schedule: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO barriers (run_id, id, idx, physical_id, producers, consumers)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, b.ID, b.Index, b.PhysicalID, producers, consumers)
		if err != nil {
			return fmt.Errorf("write schedule: insert barrier %d: %w", b.ID, err)
		}
	}
	return nil
}

func writeControlEdges(ctx context.Context, tx *sql.Tx, runID string, edges []ir.ControlEdge) error {
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO control_edges (run_id, from_task, to_task, reason, space)
			VALUES (?, ?, ?, ?, ?)
		`, runID, int(e.From), int(e.To), string(e.Reason), e.Space)
		if err != nil {
			return fmt.Errorf("write schedule: insert control edge %d->%d: %w", e.From, e.To, err)
		}
	}
	return nil
}
