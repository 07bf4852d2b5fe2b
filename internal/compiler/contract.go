package compiler

import (
	"fmt"
	"regexp"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
)

// ruleKeys is the closed set of keys a field rule may declare.
var ruleKeys = map[string]bool{
	"type":          true,
	"min_len":       true,
	"max_len":       true,
	"min_items":     true,
	"max_items":     true,
	"min":           true,
	"max":           true,
	"enum":          true,
	"item_pattern":  true,
	"item_max_len":  true,
	"keys":          true,
	"preserve_case": true,
	"required":      true,
	"default":       true,

	"collapse_whitespace": true,
}

// CompileBytes compiles CUE source holding one or more `contract: <id>: {...}`
// blocks. The filename is only used for error positions.
func CompileBytes(filename string, src []byte) ([]*contract.Contract, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileAll(v)
}

// CompileAll compiles every contract under the top-level `contract` field,
// in declaration order. A value without contracts yields an empty slice.
func CompileAll(root cue.Value) ([]*contract.Contract, error) {
	contractsVal := root.LookupPath(cue.ParsePath("contract"))
	if !contractsVal.Exists() {
		return nil, nil
	}

	iter, err := contractsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*contract.Contract
	for iter.Next() {
		c, err := CompileContract(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CompileContract parses a CUE value into a Contract.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the contract struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`contract: tags: { fields: { ... } }`)
//	c, err := CompileContract(v.LookupPath(cue.ParsePath("contract.tags")))
func CompileContract(v cue.Value) (*contract.Contract, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &contract.Contract{}

	// Contract id from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		c.ID = unquoteLabel(labels[len(labels)-1].String())
	}

	var err error
	if c.Description, _, err = lookupString(v, "description"); err != nil {
		return nil, err
	}
	if c.ListRoot, _, err = lookupString(v, "list_root"); err != nil {
		return nil, err
	}

	// Parse fields (required, at least one)
	c.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(c.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	// Parse fallback overrides (optional)
	fallbackVal := v.LookupPath(cue.ParsePath("fallback"))
	if fallbackVal.Exists() {
		fb, err := valueFromCUE(fallbackVal)
		if err != nil {
			return nil, err
		}
		m, ok := fb.(ir.Mapping)
		if !ok {
			return nil, &CompileError{
				Field:   "fallback",
				Message: "fallback must be a struct",
				Pos:     fallbackVal.Pos(),
			}
		}
		c.Fallback = m
	}

	return c, nil
}

// parseFields extracts field rules in declaration order.
func parseFields(v cue.Value) ([]contract.FieldRule, error) {
	var fields []contract.FieldRule

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return fields, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		rule, err := parseRule(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, rule)
	}

	return fields, nil
}

// parseRule compiles one field rule. Unknown keys are rejected so a typo
// cannot silently drop a constraint.
func parseRule(name string, v cue.Value) (contract.FieldRule, error) {
	rule := contract.FieldRule{Name: name}
	path := "fields." + name

	keyIter, err := v.Fields()
	if err != nil {
		return rule, formatCUEError(err)
	}
	for keyIter.Next() {
		if !ruleKeys[keyIter.Label()] {
			return rule, &CompileError{
				Field:   path + "." + keyIter.Label(),
				Message: "unknown rule key",
				Pos:     keyIter.Value().Pos(),
			}
		}
	}

	typeName, ok, err := lookupString(v, "type")
	if err != nil {
		return rule, err
	}
	if !ok {
		return rule, &CompileError{
			Field:   path + ".type",
			Message: "type is required",
			Pos:     v.Pos(),
		}
	}
	rule.Type = contract.FieldType(typeName)

	bounds := []struct {
		key string
		dst *int
	}{
		{"min_len", &rule.MinLen},
		{"max_len", &rule.MaxLen},
		{"min_items", &rule.MinItems},
		{"max_items", &rule.MaxItems},
		{"item_max_len", &rule.ItemMaxLen},
	}
	for _, b := range bounds {
		n, ok, err := lookupInt(v, b.key)
		if err != nil {
			return rule, err
		}
		if ok {
			*b.dst = int(n)
		}
	}

	if n, ok, err := lookupInt(v, "min"); err != nil {
		return rule, err
	} else if ok {
		rule.Min = &n
	}
	if n, ok, err := lookupInt(v, "max"); err != nil {
		return rule, err
	} else if ok {
		rule.Max = &n
	}

	if rule.Enum, err = lookupStringList(v, "enum"); err != nil {
		return rule, err
	}
	if rule.Keys, err = lookupStringList(v, "keys"); err != nil {
		return rule, err
	}

	pattern, ok, err := lookupString(v, "item_pattern")
	if err != nil {
		return rule, err
	}
	if ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return rule, &CompileError{
				Field:   path + ".item_pattern",
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("item_pattern")).Pos(),
			}
		}
		rule.ItemPattern = re
	}

	if rule.PreserveCase, _, err = lookupBool(v, "preserve_case"); err != nil {
		return rule, err
	}
	if rule.Required, _, err = lookupBool(v, "required"); err != nil {
		return rule, err
	}
	if rule.CollapseWhitespace, _, err = lookupBool(v, "collapse_whitespace"); err != nil {
		return rule, err
	}

	defaultVal := v.LookupPath(cue.ParsePath("default"))
	if defaultVal.Exists() {
		rule.Default, err = valueFromCUE(defaultVal)
		if err != nil {
			return rule, err
		}
	}

	return rule, nil
}

// valueFromCUE converts a concrete CUE value into an ir.Value.
// Floats are forbidden: contracts only declare integers.
func valueFromCUE(v cue.Value) (ir.Value, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.List{}
		for iter.Next() {
			item, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.Mapping{}
		for iter.Next() {
			item, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = item
		}
		return out, nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden, use an integer",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func lookupString(v cue.Value, key string) (string, bool, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return "", false, nil
	}
	s, err := val.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func lookupInt(v cue.Value, key string) (int64, bool, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return 0, false, nil
	}
	n, err := val.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}

func lookupBool(v cue.Value, key string) (bool, bool, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return false, false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}

func lookupStringList(v cue.Value, key string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func unquoteLabel(label string) string {
	if s, err := strconv.Unquote(label); err == nil {
		return s
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
