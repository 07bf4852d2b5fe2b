// Package repair applies deterministic, single-pass local fixes to a
// candidate record.
//
// Each violated field gets one fixed rule chosen by field type and violation
// kind. List and mapping fields always go through the same composed steps in
// a fixed order: coercion, normalization, item filtering, truncation. String
// fields that collapse whitespace are collapsed whenever the pass runs. Values
// that cannot be fixed are left untouched; the caller re-validates once and
// defaults whatever still fails.
package repair

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
	"github.com/roach88/aiguard/internal/validate"
)

// Result is the outcome of one repair pass.
type Result struct {
	// Record is a repaired copy. The input record is not modified.
	Record ir.Mapping

	// Changed lists fields whose value the pass modified, in declaration order.
	Changed []string
}

// Record repairs rec against c using the violations in report.
func Record(c *contract.Contract, rec ir.Mapping, report validate.Report) Result {
	out := Result{Record: rec.Clone()}
	if out.Record == nil {
		out.Record = ir.Mapping{}
	}

	for i := range c.Fields {
		rule := &c.Fields[i]
		old, present := out.Record[rule.Name]
		if !present {
			continue
		}

		var next ir.Value
		switch {
		case rule.Type == contract.TypeStringList:
			next = List(rule, old)
		case rule.Type == contract.TypeMapping:
			next = Mapping(rule, old)
		default:
			v, violated := report.For(rule.Name)
			switch {
			case violated:
				next = Scalar(rule, v.Kind, old)
			case rule.CollapseWhitespace:
				if s, ok := old.(ir.String); ok {
					next = ir.String(CollapseWhitespace(string(s)))
				}
			default:
				continue
			}
		}

		if next == nil || ir.Equal(old, next) {
			continue
		}
		out.Record[rule.Name] = next
		out.Changed = append(out.Changed, rule.Name)
	}

	return out
}

// Scalar applies the fix for one violation of a string, enum or integer
// field. It returns nil when the violation has no local fix.
func Scalar(rule *contract.FieldRule, kind validate.Kind, v ir.Value) ir.Value {
	switch rule.Type {
	case contract.TypeString:
		switch kind {
		case validate.WrongType:
			s, ok := coerceString(v)
			if !ok {
				return nil
			}
			return ir.String(truncateTo(rule, tidy(rule, s)))
		case validate.TooLong:
			if s, ok := v.(ir.String); ok {
				return ir.String(truncateTo(rule, tidy(rule, string(s))))
			}
		}
	case contract.TypeEnum:
		if kind == validate.WrongType {
			if s, ok := coerceString(v); ok {
				return ir.String(s)
			}
		}
	case contract.TypeInteger:
		switch kind {
		case validate.WrongType:
			n, ok := coerceInt(v)
			if !ok {
				return nil
			}
			return ir.Int(clamp(rule, n))
		case validate.TooLong:
			if n, ok := v.(ir.Int); ok {
				return ir.Int(clamp(rule, int64(n)))
			}
		}
	}
	// too_short, too_few_items, not_in_enum and missing have no local fix.
	return nil
}

// List runs the composed list repair. It returns nil when the value cannot
// be coerced to a list.
func List(rule *contract.FieldRule, v ir.Value) ir.Value {
	items, ok := coerceList(v)
	if !ok {
		return nil
	}
	clean := filterItems(rule, normalizeItems(rule, items))
	if rule.MaxItems > 0 && len(clean) > rule.MaxItems {
		clean = clean[:rule.MaxItems]
	}
	return ir.StringList(clean...)
}

// Mapping runs the composed list repair on every value of a mapping field,
// drops keys outside the closed key set and keeps the first MaxItems keys in
// sorted order. It returns nil when v is not a mapping.
func Mapping(rule *contract.FieldRule, v ir.Value) ir.Value {
	m, ok := v.(ir.Mapping)
	if !ok {
		return nil
	}

	out := ir.Mapping{}
	for _, k := range m.SortedKeys() {
		if rule.MaxItems > 0 && len(out) == rule.MaxItems {
			break
		}
		if !rule.AllowsKey(k) {
			continue
		}
		items, ok := coerceList(m[k])
		if !ok {
			continue
		}
		out[k] = ir.StringList(filterItems(rule, normalizeItems(rule, items))...)
	}
	return out
}

// coerceList turns v into raw list items. A string becomes its
// comma-separated parts; any other non-list value fails.
func coerceList(v ir.Value) (ir.List, bool) {
	switch val := v.(type) {
	case ir.List:
		return val, true
	case ir.String:
		return ir.StringList(SplitList(string(val))...), true
	default:
		return nil, false
	}
}

// SplitList splits a comma-separated producer string into items.
func SplitList(s string) []string {
	return strings.Split(s, ",")
}

// normalizeItems unwraps {"name": ...} objects, normalizes strings, drops
// empty entries and duplicates. Items that are not strings are kept for the
// filter step to drop.
func normalizeItems(rule *contract.FieldRule, items ir.List) []ir.Value {
	seen := make(map[string]bool, len(items))
	out := make([]ir.Value, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(ir.Mapping); ok {
			if name, ok := obj["name"].(ir.String); ok {
				item = name
			}
		}
		s, ok := item.(ir.String)
		if !ok {
			out = append(out, item)
			continue
		}
		norm := rule.NormalizeItem(string(s))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, ir.String(norm))
	}
	return out
}

// filterItems drops items that are not strings or break the item rules.
func filterItems(rule *contract.FieldRule, items []ir.Value) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(ir.String)
		if !ok {
			continue
		}
		if validate.StringItemProblem(rule, string(s)) != "" {
			continue
		}
		out = append(out, string(s))
	}
	return out
}

// coerceString stringifies a scalar. Lists and mappings do not coerce.
func coerceString(v ir.Value) (string, bool) {
	switch val := v.(type) {
	case ir.String:
		return string(val), true
	case ir.Int:
		return strconv.FormatInt(int64(val), 10), true
	case ir.Float:
		return strconv.FormatFloat(float64(val), 'f', -1, 64), true
	case ir.Bool:
		return strconv.FormatBool(bool(val)), true
	default:
		return "", false
	}
}

// coerceInt accepts integral floats and numeric strings.
func coerceInt(v ir.Value) (int64, bool) {
	switch val := v.(type) {
	case ir.Int:
		return int64(val), true
	case ir.Float:
		return integral(float64(val))
	case ir.String:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integral(f)
		}
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func clamp(rule *contract.FieldRule, n int64) int64 {
	if rule.Max != nil && n > *rule.Max {
		return *rule.Max
	}
	return n
}

// CollapseWhitespace trims s and folds each run of whitespace to one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tidy(rule *contract.FieldRule, s string) string {
	if rule.CollapseWhitespace {
		return CollapseWhitespace(s)
	}
	return s
}

func truncateTo(rule *contract.FieldRule, s string) string {
	if rule.MaxLen <= 0 {
		return s
	}
	return Truncate(s, rule.MaxLen)
}
