package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bsched/internal/config"
	"github.com/roach88/bsched/internal/graphio"
	"github.com/roach88/bsched/internal/ir"
)

// TargetOptions selects the target of schedule and validate.
type TargetOptions struct {
	Preset   string
	File     string
	Barriers int
	Slots    int
}

func (o *TargetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Preset, "target", config.DefaultPreset,
		fmt.Sprintf("target preset (%v)", config.PresetNames()))
	cmd.Flags().StringVar(&o.File, "target-file", "", "YAML target file (overrides --target)")
	cmd.Flags().IntVar(&o.Barriers, "barriers", 0, "override the physical barrier count")
	cmd.Flags().IntVar(&o.Slots, "slots", 0, "override the producer slots per barrier")
}

// resolve returns the validated target.
func (o *TargetOptions) resolve() (ir.Target, error) {
	var (
		t   ir.Target
		err error
	)
	if o.File != "" {
		t, err = config.LoadTarget(o.File)
	} else {
		t, err = config.Preset(o.Preset)
	}
	if err != nil {
		return ir.Target{}, err
	}
	t = config.Override(t, o.Barriers, o.Slots)
	if err := config.Validate(t); err != nil {
		return ir.Target{}, err
	}
	return t, nil
}

// loadGraphs reads every path, failing on the first unreadable file.
func loadGraphs(paths []string) ([]ir.Graph, error) {
	graphs := make([]ir.Graph, 0, len(paths))
	for _, p := range paths {
		g, err := graphio.LoadGraph(p)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
