package pipeline

import (
	"context"
	"fmt"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/defaults"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/parse"
	"github.com/roach88/aiguard/internal/repair"
	"github.com/roach88/aiguard/internal/validate"
)

// Lookuper resolves contract ids. *registry.Registry implements it.
type Lookuper interface {
	Lookup(id string) (*contract.Contract, error)
}

// Pipeline validates producer output against registered contracts.
type Pipeline struct {
	contracts Lookuper
	defaults  *defaults.Provider
	parser    *parse.Parser
	ids       IDGenerator
	observers []Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParser sets the parser (and so the input size limit).
func WithParser(p *parse.Parser) Option {
	return func(pl *Pipeline) { pl.parser = p }
}

// WithIDGenerator sets the run id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(pl *Pipeline) { pl.ids = g }
}

// WithObservers appends result observers.
func WithObservers(obs ...Observer) Option {
	return func(pl *Pipeline) { pl.observers = append(pl.observers, obs...) }
}

// New creates a Pipeline over contracts.
func New(contracts Lookuper, opts ...Option) *Pipeline {
	p := &Pipeline{
		contracts: contracts,
		defaults:  defaults.New(contracts),
		parser:    parse.New(0),
		ids:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs raw producer text through the state machine.
//
// The returned record always satisfies the contract. The error is non-nil
// only for an unknown contract or an invalid strictness.
func (p *Pipeline) Validate(ctx context.Context, contractID string, raw []byte, strictness contract.Strictness) (Result, error) {
	return p.run(ctx, contractID, strictness, ir.InputDigest(raw), func(c *contract.Contract) (parse.Candidate, error) {
		return p.parser.Text(c, raw)
	})
}

// ValidateValue is Validate for a payload that is already a tree.
func (p *Pipeline) ValidateValue(ctx context.Context, contractID string, v ir.Value, strictness contract.Strictness) (Result, error) {
	var digest string
	if data, err := ir.Marshal(v); err == nil {
		digest = ir.InputDigest(data)
	}
	return p.run(ctx, contractID, strictness, digest, func(c *contract.Contract) (parse.Candidate, error) {
		return p.parser.Value(c, v)
	})
}

func (p *Pipeline) run(ctx context.Context, contractID string, strictness contract.Strictness, digest string, parseFn func(*contract.Contract) (parse.Candidate, error)) (Result, error) {
	level, err := contract.ParseStrictness(string(strictness))
	if err != nil {
		return Result{}, fmt.Errorf("validate %s: %w", contractID, err)
	}
	c, err := p.contracts.Lookup(contractID)
	if err != nil {
		return Result{}, fmt.Errorf("validate: %w", err)
	}

	m := &machine{
		contract: c,
		defaults: p.defaults,
		parse:    parseFn,
		trace:    Trace{Strictness: level},
	}
	m.run()

	res := Result{
		RunID:       p.ids.Generate(),
		ContractID:  c.ID,
		Record:      m.record,
		Trace:       m.trace,
		InputDigest: digest,
	}

	for _, o := range p.observers {
		o.Observe(ctx, res)
	}
	return res, nil
}

// machine holds the per-call state of one run through the state machine.
type machine struct {
	contract *contract.Contract
	defaults *defaults.Provider
	parse    func(*contract.Contract) (parse.Candidate, error)

	record     ir.Mapping
	report     validate.Report
	pending    []string // fields to default
	fullRecord bool
	reason     RecordDefaultReason

	trace Trace
}

func (m *machine) run() {
	state := StateParsing
	for state != StateDone {
		m.trace.Path = append(m.trace.Path, state)
		state = m.step(state)
	}
	m.trace.Path = append(m.trace.Path, StateDone)
}

func (m *machine) step(s State) State {
	switch s {
	case StateParsing:
		return m.parsing()
	case StateValidating:
		return m.validating()
	case StateRepairing:
		return m.repairing()
	case StateDefaulting:
		return m.defaulting()
	default:
		panic(fmt.Sprintf("pipeline: no transition from state %q", s))
	}
}

func (m *machine) parsing() State {
	cand, err := m.parse(m.contract)
	if err != nil {
		m.trace.ParseError = err.Error()
		m.fullRecord = true
		m.reason = ReasonParseFailure
		return StateDefaulting
	}
	m.record = cand.Record
	m.trace.Dropped = cand.Dropped
	return StateValidating
}

func (m *machine) validating() State {
	m.report = validate.Record(m.contract, m.record)
	if m.report.Empty() {
		return StateDone
	}
	m.trace.Violations = m.report.Violations()
	if !m.trace.Strictness.AllowsRepair() {
		m.pending = m.report.Fields()
		return StateDefaulting
	}
	return StateRepairing
}

func (m *machine) repairing() State {
	res := repair.Record(m.contract, m.record, m.report)
	m.record = res.Record

	after := validate.Record(m.contract, m.record)
	for _, f := range res.Changed {
		if _, still := after.For(f); !still {
			m.trace.Repaired = append(m.trace.Repaired, f)
		}
	}
	if after.Empty() {
		return StateDone
	}
	m.pending = after.Fields()
	return StateDefaulting
}

func (m *machine) defaulting() State {
	if !m.fullRecord && m.trace.Strictness.EscalatesRequired() {
		for _, f := range m.pending {
			if rule, ok := m.contract.Field(f); ok && rule.Required {
				m.fullRecord = true
				m.reason = ReasonRequiredField
				break
			}
		}
	}

	// Lookups cannot fail here: the contract was resolved from the same
	// registry, and registries never drop contracts.
	if m.fullRecord {
		rec, err := m.defaults.RecordDefault(m.contract.ID)
		if err != nil {
			panic(fmt.Sprintf("pipeline: record default for %s: %v", m.contract.ID, err))
		}
		m.record = rec
		m.trace.RecordDefault = true
		m.trace.RecordDefaultReason = m.reason
		m.trace.Repaired = nil
		return StateDone
	}

	for _, f := range m.pending {
		v, err := m.defaults.FieldDefault(m.contract.ID, f)
		if err != nil {
			panic(fmt.Sprintf("pipeline: default for %s.%s: %v", m.contract.ID, f, err))
		}
		m.record[f] = v
	}
	m.trace.Defaulted = m.pending
	return StateDone
}
