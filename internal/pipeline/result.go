package pipeline

import (
	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/validate"
)

// State is one node of the pipeline state machine.
type State string

const (
	StateParsing    State = "parsing"
	StateValidating State = "validating"
	StateRepairing  State = "repairing"
	StateDefaulting State = "defaulting"
	StateDone       State = "done"
)

// RecordDefaultReason says why the whole record was replaced.
type RecordDefaultReason string

const (
	ReasonParseFailure  RecordDefaultReason = "parse_failure"
	ReasonRequiredField RecordDefaultReason = "required_field"
)

// Outcome summarizes a result for logs and metrics.
type Outcome string

const (
	OutcomeClean         Outcome = "clean"
	OutcomeRepaired      Outcome = "repaired"
	OutcomeDefaulted     Outcome = "defaulted"
	OutcomeRecordDefault Outcome = "record_default"
)

// Trace describes the path one call took. It is telemetry only and is never
// validated.
type Trace struct {
	Strictness contract.Strictness `json:"strictness"`
	Path       []State             `json:"path"`

	// Violations is the report of the first validation pass.
	Violations []validate.Violation `json:"violations,omitempty"`

	// Repaired lists fields fixed by repair that re-validated clean.
	Repaired []string `json:"repaired,omitempty"`

	// Defaulted lists fields replaced by their field default.
	Defaulted []string `json:"defaulted,omitempty"`

	RecordDefault       bool                `json:"record_default"`
	RecordDefaultReason RecordDefaultReason `json:"record_default_reason,omitempty"`
	ParseError          string              `json:"parse_error,omitempty"`

	// Dropped lists undeclared fields removed from the payload.
	Dropped []string `json:"dropped,omitempty"`
}

// Clean reports whether the payload was accepted exactly as given.
func (t Trace) Clean() bool {
	return len(t.Violations) == 0 &&
		len(t.Repaired) == 0 &&
		len(t.Defaulted) == 0 &&
		!t.RecordDefault &&
		t.ParseError == "" &&
		len(t.Dropped) == 0
}

// Outcome classifies the trace.
func (t Trace) Outcome() Outcome {
	switch {
	case t.RecordDefault:
		return OutcomeRecordDefault
	case len(t.Defaulted) > 0:
		return OutcomeDefaulted
	case len(t.Repaired) > 0:
		return OutcomeRepaired
	default:
		return OutcomeClean
	}
}

// Result is a record guaranteed to satisfy its contract, plus the trace of
// how it was produced.
type Result struct {
	RunID      string     `json:"run_id"`
	ContractID string     `json:"contract_id"`
	Record     ir.Mapping `json:"record"`
	Trace      Trace      `json:"trace"`

	// InputDigest identifies the raw payload (see ir.InputDigest).
	InputDigest string `json:"input_digest"`
}
