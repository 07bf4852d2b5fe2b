package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/pipeline"
	"github.com/roach88/aiguard/internal/registry"
	"github.com/roach88/aiguard/internal/store"
	"github.com/roach88/aiguard/internal/validate"
)

// AssertionContext holds what assertions need beyond the step results.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Registry *registry.Registry

	// Pipeline re-validates records for idempotence checks. It must not
	// share the scenario's run id sequence.
	Pipeline *pipeline.Pipeline
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// stepResult returns the pipeline result of step i, or an error when the
// step was rejected.
func stepResult(result *Result, i int, kind string) (pipeline.Result, error) {
	if i >= len(result.Steps) {
		return pipeline.Result{}, &AssertionError{Type: kind, Expected: fmt.Sprintf("step %d", i), Actual: "no such step"}
	}
	sr := result.Steps[i]
	if sr.Error != "" {
		return pipeline.Result{}, &AssertionError{Type: kind, Expected: fmt.Sprintf("step %d to produce a result", i), Actual: sr.Error}
	}
	return sr.Result, nil
}

// assertViolation checks the first validation pass of a step reported a
// violation on a field, of a given kind when one is named.
func assertViolation(result *Result, a Assertion) error {
	res, err := stepResult(result, a.Step, AssertViolation)
	if err != nil {
		return err
	}
	for _, v := range res.Trace.Violations {
		if v.Field == a.Field && (a.Kind == "" || string(v.Kind) == a.Kind) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertViolation,
		Expected: fmt.Sprintf("step %d: %s on %s", a.Step, a.Kind, a.Field),
		Actual:   fmt.Sprintf("violations %v", res.Trace.Violations),
	}
}

// assertPath checks the exact sequence of states a step went through.
func assertPath(result *Result, a Assertion) error {
	res, err := stepResult(result, a.Step, AssertPath)
	if err != nil {
		return err
	}
	got := make([]string, len(res.Trace.Path))
	for i, s := range res.Trace.Path {
		got[i] = string(s)
	}
	if slices.Equal(got, a.States) {
		return nil
	}
	return &AssertionError{
		Type:     AssertPath,
		Expected: fmt.Sprintf("step %d: %v", a.Step, a.States),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// assertIdempotent re-validates a step's record at the same strictness and
// expects it back unchanged with a clean trace.
func assertIdempotent(actx *AssertionContext, result *Result, a Assertion) error {
	res, err := stepResult(result, a.Step, AssertIdempotent)
	if err != nil {
		return err
	}
	again, err := actx.Pipeline.ValidateValue(actx.Ctx, res.ContractID, res.Record, res.Trace.Strictness)
	if err != nil {
		return fmt.Errorf("idempotent: step %d: %w", a.Step, err)
	}
	if again.Trace.Clean() && ir.Equal(again.Record, res.Record) {
		return nil
	}
	return &AssertionError{
		Type:     AssertIdempotent,
		Expected: fmt.Sprintf("step %d: record re-validates clean", a.Step),
		Actual:   fmt.Sprintf("outcome %s, violations %v", again.Trace.Outcome(), again.Trace.Violations),
	}
}

// assertFieldStats checks the audit store's per-field event counts.
func assertFieldStats(actx *AssertionContext, a Assertion) error {
	stats, err := actx.Store.FieldStats(actx.Ctx, "")
	if err != nil {
		return fmt.Errorf("field_stats: %w", err)
	}
	var got int64
	for _, st := range stats {
		if st.Field == a.Field && st.Outcome == a.Outcome {
			got += st.Count
		}
	}
	if got == int64(a.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFieldStats,
		Expected: fmt.Sprintf("%d %s events for %s", a.Count, a.Outcome, a.Field),
		Actual:   fmt.Sprintf("%d", got),
	}
}

// assertValidRecords checks every produced record satisfies its contract.
func assertValidRecords(actx *AssertionContext, result *Result) error {
	for i, sr := range result.Steps {
		if sr.Error != "" {
			continue
		}
		c, err := actx.Registry.Lookup(sr.Result.ContractID)
		if err != nil {
			return fmt.Errorf("valid_records: step %d: %w", i, err)
		}
		report := validate.Record(c, sr.Result.Record)
		if !report.Empty() {
			return &AssertionError{
				Type:     AssertValidRecords,
				Expected: fmt.Sprintf("step %d record satisfies %s", i, c.ID),
				Actual:   fmt.Sprintf("violations %v", report.Violations()),
			}
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns their failure
// messages in order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertViolation:
			err = assertViolation(result, assertion)
		case AssertPath:
			err = assertPath(result, assertion)
		case AssertIdempotent:
			if actx == nil || actx.Pipeline == nil {
				err = fmt.Errorf("assertion[%d]: idempotent requires a pipeline", i)
			} else {
				err = assertIdempotent(actx, result, assertion)
			}
		case AssertFieldStats:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: field_stats requires database context", i)
			} else {
				err = assertFieldStats(actx, assertion)
			}
		case AssertValidRecords:
			if actx == nil || actx.Registry == nil {
				err = fmt.Errorf("assertion[%d]: valid_records requires a registry", i)
			} else {
				err = assertValidRecords(actx, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
