package harness

import (
	"bytes"
	"fmt"
	"io"

	"github.com/roach88/bsched/internal/ir"
)

// RenderSchedule writes a line-oriented text form of s. The hash is left
// out so the text only changes when the schedule itself does.
func RenderSchedule(w io.Writer, s *ir.Schedule) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "graph: %s\n", s.Graph)
	fmt.Fprintf(&buf, "target: %s\n", s.Target.Name)
	fmt.Fprintf(&buf, "barrier_count: %d\n", s.BarrierCount)

	buf.WriteString("ops:\n")
	for _, op := range s.Ops {
		fmt.Fprintf(&buf, "  t=%d task=%d index=%d slots=%d\n", op.Time, op.Task, op.BarrierIndex, op.Slots)
	}

	if len(s.Barriers) == 0 {
		buf.WriteString("barriers: none\n")
	} else {
		buf.WriteString("barriers:\n")
		for _, b := range s.Barriers {
			fmt.Fprintf(&buf, "  b%d index=%d physical=%d producers=%v consumers=%v\n",
				b.ID, b.Index, b.PhysicalID, b.Producers, b.Consumers)
		}
	}

	buf.WriteString("tasks:\n")
	for _, ts := range s.Tasks {
		fmt.Fprintf(&buf, "  t=%d task=%d wait=%v update=%v\n", ts.Time, ts.Task, ts.Wait, ts.Update)
	}

	if len(s.ControlEdges) == 0 {
		buf.WriteString("control_edges: none\n")
	} else {
		buf.WriteString("control_edges:\n")
		for _, e := range s.ControlEdges {
			if e.Space != "" {
				fmt.Fprintf(&buf, "  %d -> %d %s %s\n", e.From, e.To, e.Reason, e.Space)
			} else {
				fmt.Fprintf(&buf, "  %d -> %d %s\n", e.From, e.To, e.Reason)
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}
