package barrier

import (
	"strconv"

	"github.com/roach88/bsched/internal/depgraph"
	"github.com/roach88/bsched/internal/ir"
)

// VerifyCoverage checks that every accelerator -> accelerator dependency
// of g is still enforced by the barriers in t, directly or transitively.
func VerifyCoverage(g *depgraph.Graph, t *Table) error {
	o := newOracle(t)
	var err error
	g.Edges(func(from, to int) {
		if err != nil || !g.Task(from).Accelerator || !g.Task(to).Accelerator {
			return
		}
		a, b := g.ID(from), g.ID(to)
		ok, perr := o.pathExists(a, b)
		if perr != nil {
			err = perr
			return
		}
		if !ok {
			ce := ir.NewTaskError(ir.ErrCodeUnderSynchronized, b,
				"dependency on task %d is not covered by any barrier path", a)
			ce.Details = map[string]string{"producer": strconv.Itoa(int(a))}
			err = ce
		}
	})
	return err
}
