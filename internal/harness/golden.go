package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/aiguard/internal/ir"
)

// Snapshot builds the canonical form of a scenario run. Only deterministic
// parts of each result are included.
func Snapshot(scenarioName string, result *Result) ir.Mapping {
	steps := make(ir.List, len(result.Steps))
	for i, sr := range result.Steps {
		steps[i] = stepSnapshot(sr)
	}
	return ir.Mapping{
		"scenario_name": ir.String(scenarioName),
		"steps":         steps,
	}
}

func stepSnapshot(sr StepResult) ir.Mapping {
	if sr.Error != "" {
		return ir.Mapping{"error": ir.String(sr.Error)}
	}
	res := sr.Result
	tr := res.Trace

	path := make([]string, len(tr.Path))
	for i, s := range tr.Path {
		path[i] = string(s)
	}

	m := ir.Mapping{
		"run_id":         ir.String(res.RunID),
		"contract":       ir.String(res.ContractID),
		"strictness":     ir.String(tr.Strictness),
		"outcome":        ir.String(tr.Outcome()),
		"path":           ir.StringList(path...),
		"record":         res.Record,
		"record_default": ir.Bool(tr.RecordDefault),
	}
	if len(tr.Violations) > 0 {
		vs := make(ir.List, len(tr.Violations))
		for i, v := range tr.Violations {
			vs[i] = ir.Mapping{
				"field":  ir.String(v.Field),
				"kind":   ir.String(v.Kind),
				"detail": ir.String(v.Detail),
			}
		}
		m["violations"] = vs
	}
	optionalList(m, "repaired", tr.Repaired)
	optionalList(m, "defaulted", tr.Defaulted)
	optionalList(m, "dropped", tr.Dropped)
	if tr.RecordDefaultReason != "" {
		m["reason"] = ir.String(tr.RecordDefaultReason)
	}
	if tr.ParseError != "" {
		m["parse_error"] = ir.String(tr.ParseError)
	}
	return m
}

func optionalList(m ir.Mapping, key string, items []string) {
	if len(items) > 0 {
		m[key] = ir.StringList(items...)
	}
}

// MarshalSnapshot returns the canonical JSON golden bytes of a run.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(Snapshot(scenarioName, result))
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
