package graphio

import (
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/bsched/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// ParseCUE compiles CUE source, checks it against the #Graph schema and
// converts the result. filename is used in error positions.
func ParseCUE(data []byte, filename string) (ir.Graph, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Graph")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}
	return CompileGraph(unified)
}

// CompileGraph converts a schema-checked CUE value into a graph.
func CompileGraph(v cue.Value) (ir.Graph, error) {
	if err := v.Err(); err != nil {
		return ir.Graph{}, formatCUEError(err)
	}

	var g ir.Graph
	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return ir.Graph{}, formatCUEError(err)
	}
	g.Name = name

	iter, err := v.LookupPath(cue.ParsePath("tasks")).List()
	if err != nil {
		return ir.Graph{}, formatCUEError(err)
	}
	for iter.Next() {
		task, err := parseTask(iter.Value())
		if err != nil {
			return ir.Graph{}, err
		}
		g.Tasks = append(g.Tasks, task)
	}
	return g, nil
}

func parseTask(v cue.Value) (ir.Task, error) {
	var t ir.Task

	id, err := v.LookupPath(cue.ParsePath("id")).Int64()
	if err != nil {
		return t, formatCUEError(err)
	}
	t.ID = ir.TaskID(id)

	if s, ok, err := optionalString(v, "name"); err != nil {
		return t, err
	} else if ok {
		t.Name = s
	}
	if s, ok, err := optionalString(v, "kind"); err != nil {
		return t, err
	} else if ok {
		t.Kind = ir.TaskKind(s)
	}
	if n, ok, err := optionalInt(v, "slots"); err != nil {
		return t, err
	} else if ok {
		t.Slots = int(n)
	}
	if n, ok, err := optionalInt(v, "priority"); err != nil {
		return t, err
	} else if ok {
		p := int(n)
		t.Priority = &p
	}

	acc := v.LookupPath(cue.ParsePath("accelerator"))
	if d, ok := acc.Default(); ok {
		acc = d
	}
	if t.Accelerator, err = acc.Bool(); err != nil {
		return t, formatCUEError(err)
	}

	if deps := v.LookupPath(cue.ParsePath("depends_on")); deps.Exists() {
		iter, err := deps.List()
		if err != nil {
			return t, formatCUEError(err)
		}
		for iter.Next() {
			d, err := iter.Value().Int64()
			if err != nil {
				return t, formatCUEError(err)
			}
			t.DependsOn = append(t.DependsOn, ir.TaskID(d))
		}
	}

	if bufs := v.LookupPath(cue.ParsePath("buffers")); bufs.Exists() {
		iter, err := bufs.List()
		if err != nil {
			return t, formatCUEError(err)
		}
		for iter.Next() {
			b, err := parseBuffer(iter.Value())
			if err != nil {
				return t, err
			}
			t.Buffers = append(t.Buffers, b)
		}
	}
	return t, nil
}

func parseBuffer(v cue.Value) (ir.MemoryRange, error) {
	var r ir.MemoryRange
	var err error
	if r.Space, err = v.LookupPath(cue.ParsePath("space")).String(); err != nil {
		return r, formatCUEError(err)
	}
	if r.Offset, err = v.LookupPath(cue.ParsePath("offset")).Int64(); err != nil {
		return r, formatCUEError(err)
	}
	if r.Length, err = v.LookupPath(cue.ParsePath("length")).Int64(); err != nil {
		return r, formatCUEError(err)
	}
	return r, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() || !f.IsConcrete() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optionalInt(v cue.Value, field string) (int64, bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() || !f.IsConcrete() {
		return 0, false, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}
