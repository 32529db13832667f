package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bsched/internal/ir"
)

// RunWithGolden executes a scenario and compares the rendered schedule
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run or fails its assertions.
// A golden mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %q failed: %v", scenario.Name, result.Errors)
	}
	if result.Schedule == nil {
		return fmt.Errorf("scenario %q produced no schedule", scenario.Name)
	}
	return AssertGolden(t, scenario.Name, result.Schedule)
}

// AssertGolden compares a schedule against the golden file name.
func AssertGolden(t *testing.T, name string, s *ir.Schedule) error {
	t.Helper()

	var buf bytes.Buffer
	if err := RenderSchedule(&buf, s); err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
	return nil
}
