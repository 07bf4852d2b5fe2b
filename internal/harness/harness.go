package harness

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/roach88/aiguard/internal/builtin"
	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/pipeline"
	"github.com/roach88/aiguard/internal/registry"
	"github.com/roach88/aiguard/internal/store"
	"github.com/roach88/aiguard/internal/testutil"
)

// DefaultRunID prefixes step run ids when a scenario sets none.
const DefaultRunID = "test-run"

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh registry and a fresh in-memory audit
// store. An error is returned only when the scenario cannot be set up; step
// and assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	reg, err := buildRegistry(scenario.Contracts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	p := pipeline.New(reg,
		pipeline.WithIDGenerator(pipeline.NewSequenceGenerator(stepRunIDs(scenario)...)),
		pipeline.WithObservers(store.NewSink(st, nil)),
	)

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := runStep(ctx, p, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkExpect(step.Expect, sr) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Registry: reg,
		Pipeline: pipeline.New(reg, pipeline.WithIDGenerator(testutil.NewFixedRunIDGenerator(""))),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// buildRegistry registers the builtin contracts plus every file in paths.
func buildRegistry(paths []string) (*registry.Registry, error) {
	reg := registry.New()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read contract file: %w", err)
		}
		cs, err := compiler.CompileBytes(path, src)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		for _, c := range cs {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register %s: %w", c.ID, err)
			}
		}
	}
	reg.Seal()
	return reg, nil
}

func stepRunIDs(s *Scenario) []string {
	base := s.RunID
	if base == "" {
		base = DefaultRunID
	}
	ids := make([]string, len(s.Steps))
	for i := range s.Steps {
		ids[i] = fmt.Sprintf("%s-%d", base, i+1)
	}
	return ids
}

// runStep validates one payload. Configuration errors are captured in the
// StepResult; only a payload the harness cannot convert is returned.
func runStep(ctx context.Context, p *pipeline.Pipeline, step Step) (StepResult, error) {
	var (
		res pipeline.Result
		err error
	)
	if step.Value != nil {
		v, convErr := ir.FromAny(step.Value)
		if convErr != nil {
			return StepResult{}, fmt.Errorf("failed to convert value: %w", convErr)
		}
		res, err = p.ValidateValue(ctx, step.Contract, v, step.Strictness)
	} else {
		res, err = p.Validate(ctx, step.Contract, []byte(step.Input), step.Strictness)
	}
	if err != nil {
		return StepResult{Error: err.Error()}, nil
	}
	return StepResult{Result: res}, nil
}

// checkExpect compares a step result with its expect clause.
func checkExpect(exp *ExpectClause, sr StepResult) []string {
	if exp == nil {
		if sr.Error != "" {
			return []string{fmt.Sprintf("unexpected error: %s", sr.Error)}
		}
		return nil
	}

	if exp.Error != "" || sr.Error != "" {
		switch {
		case sr.Error == "":
			return []string{fmt.Sprintf("expected error containing %q, got none", exp.Error)}
		case exp.Error == "":
			return []string{fmt.Sprintf("unexpected error: %s", sr.Error)}
		case !strings.Contains(sr.Error, exp.Error):
			return []string{fmt.Sprintf("error %q does not contain %q", sr.Error, exp.Error)}
		}
		return nil
	}

	var errs []string
	tr := sr.Result.Trace
	if exp.Outcome != "" && string(tr.Outcome()) != exp.Outcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %s, got %s", exp.Outcome, tr.Outcome()))
	}
	if exp.Reason != "" && string(tr.RecordDefaultReason) != exp.Reason {
		errs = append(errs, fmt.Sprintf("reason: expected %s, got %q", exp.Reason, tr.RecordDefaultReason))
	}
	errs = append(errs, checkList("repaired", exp.Repaired, tr.Repaired)...)
	errs = append(errs, checkList("defaulted", exp.Defaulted, tr.Defaulted)...)
	errs = append(errs, checkList("dropped", exp.Dropped, tr.Dropped)...)

	for _, key := range sortedKeys(exp.Record) {
		want, err := ir.FromAny(exp.Record[key])
		if err != nil {
			errs = append(errs, fmt.Sprintf("record.%s: %v", key, err))
			continue
		}
		got, ok := sr.Result.Record[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("record.%s: missing", key))
			continue
		}
		if !ir.Equal(got, want) {
			errs = append(errs, fmt.Sprintf("record.%s: expected %s, got %s", key, describe(want), describe(got)))
		}
	}
	return errs
}

func checkList(name string, want, got []string) []string {
	if want == nil {
		return nil
	}
	if len(want) == 0 && len(got) == 0 {
		return nil
	}
	if !slices.Equal(want, got) {
		return []string{fmt.Sprintf("%s: expected %v, got %v", name, want, got)}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// describe renders a value as JSON for error messages.
func describe(v ir.Value) string {
	data, err := ir.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
