package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSchedule = "bsched/schedule/v1"
	DomainGraph    = "bsched/graph/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphHash computes the content hash of a task graph. Two graphs with the
// same tasks in the same order hash identically.
func GraphHash(g Graph) (string, error) {
	tasks := make([]any, len(g.Tasks))
	for i, t := range g.Tasks {
		deps := make([]any, len(t.DependsOn))
		for j, d := range t.DependsOn {
			deps[j] = int(d)
		}
		bufs := make([]any, len(t.Buffers))
		for j, b := range t.Buffers {
			bufs[j] = map[string]any{"space": b.Space, "offset": b.Offset, "length": b.Length}
		}
		obj := map[string]any{
			"id":          int(t.ID),
			"name":        t.Name,
			"kind":        string(t.Kind),
			"depends_on":  deps,
			"slots":       t.Slots,
			"accelerator": t.Accelerator,
			"buffers":     bufs,
		}
		if t.Priority != nil {
			obj["priority"] = *t.Priority
		}
		tasks[i] = obj
	}

	canonical, err := MarshalCanonical(map[string]any{"name": g.Name, "tasks": tasks})
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// ScheduleHash computes the content hash of a finalized schedule.
// The Hash field itself is excluded.
func ScheduleHash(s *Schedule) (string, error) {
	ops := make([]any, len(s.Ops))
	for i, op := range s.Ops {
		ops[i] = map[string]any{
			"task":          int(op.Task),
			"time":          op.Time,
			"barrier_index": op.BarrierIndex,
			"slots":         op.Slots,
		}
	}
	barriers := make([]any, len(s.Barriers))
	for i, b := range s.Barriers {
		barriers[i] = map[string]any{
			"id":          b.ID,
			"index":       b.Index,
			"physical_id": b.PhysicalID,
			"producers":   taskIDs(b.Producers),
			"consumers":   taskIDs(b.Consumers),
		}
	}
	tasks := make([]any, len(s.Tasks))
	for i, ts := range s.Tasks {
		tasks[i] = map[string]any{
			"task":   int(ts.Task),
			"time":   ts.Time,
			"wait":   ts.Wait,
			"update": ts.Update,
		}
	}
	edges := make([]any, len(s.ControlEdges))
	for i, e := range s.ControlEdges {
		edges[i] = map[string]any{
			"from":   int(e.From),
			"to":     int(e.To),
			"reason": string(e.Reason),
			"space":  e.Space,
		}
	}

	obj := map[string]any{
		"version":       ScheduleVersion,
		"graph":         s.Graph,
		"target":        s.Target.Name,
		"barrier_count": s.BarrierCount,
		"ops":           ops,
		"barriers":      barriers,
		"tasks":         tasks,
		"order":         taskIDs(s.Order),
		"control_edges": edges,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ScheduleHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchedule, canonical), nil
}

func taskIDs(ids []TaskID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
