// Package parse turns raw producer output into a candidate record.
//
// Parsing is all-or-nothing: if the payload is not one well-formed JSON
// value shaped like a mapping, the result is a Failure and no partial record
// is salvaged.
package parse

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
)

// DefaultMaxInputBytes bounds raw payloads when no limit is configured.
const DefaultMaxInputBytes = 1 << 20

// Reason classifies a parse failure.
type Reason string

const (
	ReasonEmpty        Reason = "empty"
	ReasonTooLarge     Reason = "too_large"
	ReasonSyntax       Reason = "syntax"
	ReasonTrailingData Reason = "trailing_data"
	ReasonNotMapping   Reason = "not_mapping"
)

// Failure reports producer output that cannot be read as a record.
type Failure struct {
	Reason Reason
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("parse failure (%s)", f.Reason)
	}
	return fmt.Sprintf("parse failure (%s): %s", f.Reason, f.Detail)
}

// IsFailure returns true if err is a parse Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// Candidate is a record restricted to the contract's declared fields.
type Candidate struct {
	// Record holds declared fields only. JSON null values are removed.
	Record ir.Mapping

	// Dropped lists undeclared field names, sorted.
	Dropped []string
}

// Parser decodes producer payloads. The zero value uses DefaultMaxInputBytes.
type Parser struct {
	MaxInputBytes int
}

// New returns a Parser with the given input limit. A limit <= 0 selects
// DefaultMaxInputBytes.
func New(maxInputBytes int) *Parser {
	return &Parser{MaxInputBytes: maxInputBytes}
}

func (p *Parser) limit() int {
	if p == nil || p.MaxInputBytes <= 0 {
		return DefaultMaxInputBytes
	}
	return p.MaxInputBytes
}

var bom = []byte("\xef\xbb\xbf")

// Text parses raw producer text for contract c.
func (p *Parser) Text(c *contract.Contract, raw []byte) (Candidate, error) {
	if len(raw) > p.limit() {
		return Candidate{}, &Failure{
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(raw), p.limit()),
		}
	}

	body := StripFence(bytes.TrimPrefix(raw, bom))
	if len(body) == 0 {
		return Candidate{}, &Failure{Reason: ReasonEmpty}
	}

	v, err := ir.Decode(body)
	if errors.Is(err, ir.ErrTrailingData) {
		return Candidate{}, &Failure{Reason: ReasonTrailingData, Detail: err.Error()}
	}
	if err != nil {
		return Candidate{}, &Failure{Reason: ReasonSyntax, Detail: err.Error()}
	}

	return p.Value(c, v)
}

// Value shapes an already-decoded payload for contract c.
func (p *Parser) Value(c *contract.Contract, v ir.Value) (Candidate, error) {
	switch val := v.(type) {
	case ir.Mapping:
		return restrict(c, val), nil
	case ir.List:
		if c.ListRoot != "" {
			return restrict(c, ir.Mapping{c.ListRoot: val}), nil
		}
	}
	return Candidate{}, &Failure{
		Reason: ReasonNotMapping,
		Detail: fmt.Sprintf("top-level value is %s", ir.KindOf(v)),
	}
}

// restrict keeps declared, non-null fields and records the rest as dropped.
func restrict(c *contract.Contract, m ir.Mapping) Candidate {
	out := Candidate{Record: make(ir.Mapping, len(c.Fields))}
	for k, v := range m {
		if _, declared := c.Field(k); !declared {
			out.Dropped = append(out.Dropped, k)
			continue
		}
		if _, isNull := v.(ir.Null); isNull {
			continue
		}
		out.Record[k] = v
	}
	slices.Sort(out.Dropped)
	return out
}

// StripFence trims whitespace and removes one surrounding Markdown code
// fence such as ```json ... ```. Input without a fence is only trimmed.
func StripFence(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(s, []byte("```")) {
		return s
	}

	body := s[3:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 && isInfoString(bytes.TrimSpace(body[:nl])) {
		body = body[nl+1:]
	} else if len(body) >= 4 && bytes.EqualFold(body[:4], []byte("json")) {
		body = body[4:]
	}
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte("```"))
	return bytes.TrimSpace(body)
}

// isInfoString reports whether b looks like a fence language tag.
func isInfoString(b []byte) bool {
	for _, c := range b {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum && c != '-' && c != '_' {
			return false
		}
	}
	return true
}
