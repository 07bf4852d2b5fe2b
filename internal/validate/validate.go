// Package validate checks candidate records against a contract.
//
// Fields are checked independently in declaration order. For each field the
// first violation found wins, in this order: presence, type, bounds,
// membership, items. A Report is immutable once built.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
)

// Kind is the closed set of ways a field can fail its rule.
type Kind string

const (
	Missing      Kind = "missing"
	WrongType    Kind = "wrong_type"
	TooShort     Kind = "too_short"
	TooLong      Kind = "too_long"
	TooManyItems Kind = "too_many_items"
	TooFewItems  Kind = "too_few_items"
	NotInEnum    Kind = "not_in_enum"
	InvalidItem  Kind = "invalid_item"
)

// Kinds lists every violation kind.
var Kinds = []Kind{Missing, WrongType, TooShort, TooLong, TooManyItems, TooFewItems, NotInEnum, InvalidItem}

// Violation is one field failing its rule.
type Violation struct {
	Field  string `json:"field"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Field, v.Kind, v.Detail)
}

// Report is the ordered list of violations for one record.
type Report struct {
	violations []Violation
}

// Empty reports whether the record satisfied every rule.
func (r Report) Empty() bool { return len(r.violations) == 0 }

// Len returns the number of violations.
func (r Report) Len() int { return len(r.violations) }

// Violations returns a copy of the violations in field declaration order.
func (r Report) Violations() []Violation {
	out := make([]Violation, len(r.violations))
	copy(out, r.violations)
	return out
}

// For returns the violation recorded for field, if any.
func (r Report) For(field string) (Violation, bool) {
	for _, v := range r.violations {
		if v.Field == field {
			return v, true
		}
	}
	return Violation{}, false
}

// Fields returns the violating field names in report order.
func (r Report) Fields() []string {
	out := make([]string, len(r.violations))
	for i, v := range r.violations {
		out[i] = v.Field
	}
	return out
}

// Record validates rec against every rule of c.
// Keys of rec that c does not declare are ignored.
func Record(c *contract.Contract, rec ir.Mapping) Report {
	var out []Violation
	for i := range c.Fields {
		rule := &c.Fields[i]
		if v, bad := Field(rule, rec[rule.Name]); bad {
			out = append(out, v)
		}
	}
	return Report{violations: out}
}

// Valid reports whether rec satisfies c.
func Valid(c *contract.Contract, rec ir.Mapping) bool {
	return Record(c, rec).Empty()
}

// Field checks a single value against rule. A nil value or JSON null is
// missing. The boolean is true when a violation was found.
func Field(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	if v == nil {
		return violation(rule, Missing, "field is absent")
	}
	if _, isNull := v.(ir.Null); isNull {
		return violation(rule, Missing, "field is null")
	}

	switch rule.Type {
	case contract.TypeString:
		return checkString(rule, v)
	case contract.TypeEnum:
		return checkEnum(rule, v)
	case contract.TypeInteger:
		return checkInteger(rule, v)
	case contract.TypeStringList:
		return checkList(rule, v)
	case contract.TypeMapping:
		return checkMapping(rule, v)
	default:
		return violation(rule, WrongType, fmt.Sprintf("rule has unknown type %q", rule.Type))
	}
}

func violation(rule *contract.FieldRule, kind Kind, detail string) (Violation, bool) {
	return Violation{Field: rule.Name, Kind: kind, Detail: detail}, true
}

func wrongType(rule *contract.FieldRule, want string, v ir.Value) (Violation, bool) {
	return violation(rule, WrongType, fmt.Sprintf("expected %s, got %s", want, ir.KindOf(v)))
}

func checkString(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	s, ok := v.(ir.String)
	if !ok {
		return wrongType(rule, ir.KindString, v)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(string(s))); n < rule.MinLen {
		return violation(rule, TooShort, fmt.Sprintf("%d characters, minimum %d", n, rule.MinLen))
	}
	if n := utf8.RuneCountInString(string(s)); rule.MaxLen > 0 && n > rule.MaxLen {
		return violation(rule, TooLong, fmt.Sprintf("%d characters, maximum %d", n, rule.MaxLen))
	}
	return Violation{}, false
}

func checkEnum(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	s, ok := v.(ir.String)
	if !ok {
		return wrongType(rule, ir.KindString, v)
	}
	if !rule.InEnum(string(s)) {
		return violation(rule, NotInEnum, fmt.Sprintf("%q not in [%s]", string(s), strings.Join(rule.Enum, " ")))
	}
	return Violation{}, false
}

func checkInteger(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	n, ok := v.(ir.Int)
	if !ok {
		return wrongType(rule, ir.KindInt, v)
	}
	if rule.Min != nil && int64(n) < *rule.Min {
		return violation(rule, TooShort, fmt.Sprintf("%d below minimum %d", int64(n), *rule.Min))
	}
	if rule.Max != nil && int64(n) > *rule.Max {
		return violation(rule, TooLong, fmt.Sprintf("%d above maximum %d", int64(n), *rule.Max))
	}
	return Violation{}, false
}

func checkList(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	l, ok := v.(ir.List)
	if !ok {
		return wrongType(rule, ir.KindList, v)
	}
	if bad, found := checkCount(rule, len(l)); found {
		return bad, true
	}
	if detail := ItemProblem(rule, l); detail != "" {
		return violation(rule, InvalidItem, detail)
	}
	return Violation{}, false
}

func checkMapping(rule *contract.FieldRule, v ir.Value) (Violation, bool) {
	m, ok := v.(ir.Mapping)
	if !ok {
		return wrongType(rule, ir.KindMapping, v)
	}
	if bad, found := checkCount(rule, len(m)); found {
		return bad, true
	}
	for _, k := range m.SortedKeys() {
		if !rule.AllowsKey(k) {
			return violation(rule, InvalidItem, fmt.Sprintf("key %q not allowed", k))
		}
		l, ok := m[k].(ir.List)
		if !ok {
			return violation(rule, InvalidItem, fmt.Sprintf("key %q: expected list, got %s", k, ir.KindOf(m[k])))
		}
		if detail := ItemProblem(rule, l); detail != "" {
			return violation(rule, InvalidItem, fmt.Sprintf("key %q: %s", k, detail))
		}
	}
	return Violation{}, false
}

func checkCount(rule *contract.FieldRule, n int) (Violation, bool) {
	if n < rule.MinItems {
		return violation(rule, TooFewItems, fmt.Sprintf("%d items, minimum %d", n, rule.MinItems))
	}
	if rule.MaxItems > 0 && n > rule.MaxItems {
		return violation(rule, TooManyItems, fmt.Sprintf("%d items, maximum %d", n, rule.MaxItems))
	}
	return Violation{}, false
}

// ItemProblem describes the first list item that breaks the rule's item
// constraints, or returns "" when every item is acceptable. Items must be
// non-empty strings already in normal form, unique, within ItemMaxLen and
// matching ItemPattern.
func ItemProblem(rule *contract.FieldRule, l ir.List) string {
	seen := make(map[string]bool, len(l))
	for i, item := range l {
		s, ok := item.(ir.String)
		if !ok {
			return fmt.Sprintf("item[%d]: expected string, got %s", i, ir.KindOf(item))
		}
		str := string(s)
		if reason := StringItemProblem(rule, str); reason != "" {
			return fmt.Sprintf("item[%d]: %s", i, reason)
		}
		if seen[str] {
			return fmt.Sprintf("item[%d]: duplicate %q", i, str)
		}
		seen[str] = true
	}
	return ""
}

// StringItemProblem checks one item in isolation, ignoring duplicates.
func StringItemProblem(rule *contract.FieldRule, s string) string {
	switch {
	case strings.TrimSpace(s) == "":
		return "empty"
	case s != rule.NormalizeItem(s):
		return fmt.Sprintf("%q is not normalized", s)
	case rule.ItemMaxLen > 0 && utf8.RuneCountInString(s) > rule.ItemMaxLen:
		return fmt.Sprintf("%q exceeds %d characters", s, rule.ItemMaxLen)
	case rule.ItemPattern != nil && !rule.ItemPattern.MatchString(s):
		return fmt.Sprintf("%q does not match %s", s, rule.ItemPattern.String())
	}
	return ""
}
