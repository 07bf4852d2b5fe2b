package store

import (
	"fmt"
	"slices"

	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/pipeline"
)

// Field event outcomes.
const (
	FieldRepaired      = "repaired"
	FieldDefaulted     = "defaulted"
	FieldRecordDefault = "record_default"
	FieldUnresolved    = "unresolved"
)

// Run is one stored pipeline result.
type Run struct {
	Seq                 int64        `json:"seq"`
	ID                  string       `json:"id"`
	ContractID          string       `json:"contract"`
	Strictness          string       `json:"strictness"`
	Path                []string     `json:"path"`
	Outcome             string       `json:"outcome"`
	RecordDefault       bool         `json:"record_default"`
	RecordDefaultReason string       `json:"record_default_reason,omitempty"`
	ParseError          string       `json:"parse_error,omitempty"`
	Dropped             []string     `json:"dropped,omitempty"`
	InputDigest         string       `json:"input_digest"`
	Record              ir.Mapping   `json:"record"`
	RecordDigest        string       `json:"record_digest"`
	Events              []FieldEvent `json:"events,omitempty"`
}

// FieldEvent records what happened to one field during a run.
// Kind is empty for fields that changed without a first-pass violation.
type FieldEvent struct {
	Ord     int    `json:"ord"`
	Field   string `json:"field"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Outcome string `json:"outcome"`
}

// OutcomeCount counts runs per (contract, outcome).
type OutcomeCount struct {
	Contract string `json:"contract"`
	Outcome  string `json:"outcome"`
	Count    int64  `json:"count"`
}

// FieldStat counts field events per (field, outcome).
type FieldStat struct {
	Field   string `json:"field"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// RunFromResult converts a pipeline result into its stored form.
func RunFromResult(res pipeline.Result) (Run, error) {
	digest, err := ir.RecordDigest(res.Record)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", res.RunID, err)
	}

	tr := res.Trace
	path := make([]string, len(tr.Path))
	for i, st := range tr.Path {
		path[i] = string(st)
	}

	return Run{
		ID:                  res.RunID,
		ContractID:          res.ContractID,
		Strictness:          string(tr.Strictness),
		Path:                path,
		Outcome:             string(tr.Outcome()),
		RecordDefault:       tr.RecordDefault,
		RecordDefaultReason: string(tr.RecordDefaultReason),
		ParseError:          tr.ParseError,
		Dropped:             tr.Dropped,
		InputDigest:         res.InputDigest,
		Record:              res.Record,
		RecordDigest:        digest,
		Events:              fieldEvents(tr),
	}, nil
}

// fieldEvents lists one event per first-pass violation, then one per
// repaired or defaulted field that had none.
func fieldEvents(tr pipeline.Trace) []FieldEvent {
	resolve := func(field string) string {
		switch {
		case tr.RecordDefault:
			return FieldRecordDefault
		case slices.Contains(tr.Defaulted, field):
			return FieldDefaulted
		case slices.Contains(tr.Repaired, field):
			return FieldRepaired
		default:
			return FieldUnresolved
		}
	}

	var events []FieldEvent
	seen := make(map[string]bool)
	for _, v := range tr.Violations {
		seen[v.Field] = true
		events = append(events, FieldEvent{
			Ord:     len(events),
			Field:   v.Field,
			Kind:    string(v.Kind),
			Detail:  v.Detail,
			Outcome: resolve(v.Field),
		})
	}
	for _, f := range append(slices.Clone(tr.Repaired), tr.Defaulted...) {
		if seen[f] {
			continue
		}
		seen[f] = true
		events = append(events, FieldEvent{Ord: len(events), Field: f, Outcome: resolve(f)})
	}
	return events
}
