package contract

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/aiguard/internal/ir"
)

// FieldType is the semantic type of a field.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeStringList FieldType = "string_list"
	TypeEnum       FieldType = "enum"
	TypeInteger    FieldType = "integer"
	TypeMapping    FieldType = "mapping"
)

// Valid reports whether t is one of the declared field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeStringList, TypeEnum, TypeInteger, TypeMapping:
		return true
	}
	return false
}

// IsList reports whether values of this type hold string items.
// Mapping values are string lists too, so they share the item rules.
func (t FieldType) IsList() bool {
	return t == TypeStringList || t == TypeMapping
}

// FieldRule holds one field's constraints.
//
// Maximum bounds of 0 mean unbounded. Integer bounds are pointers because 0
// is a meaningful limit for them.
type FieldRule struct {
	Name string
	Type FieldType

	// MinLen and MaxLen bound string length in characters.
	MinLen int
	MaxLen int

	// MinItems and MaxItems bound list length, or key count for mappings.
	MinItems int
	MaxItems int

	// Min and Max bound integer values.
	Min *int64
	Max *int64

	// Enum is the membership set for enum fields.
	Enum []string

	// ItemPattern and ItemMaxLen constrain each list item.
	ItemPattern *regexp.Regexp
	ItemMaxLen  int

	// Keys is the closed key set of a mapping field. Empty allows any key.
	Keys []string

	// PreserveCase disables lowercasing of list items.
	PreserveCase bool

	// CollapseWhitespace makes repair trim a string field and fold every
	// whitespace run inside it to one space.
	CollapseWhitespace bool

	// Required fields escalate to the full-record default under strict
	// when they violate.
	Required bool

	Default ir.Value
}

// InEnum reports whether s is a member of the rule's enum set.
func (r *FieldRule) InEnum(s string) bool {
	for _, e := range r.Enum {
		if e == s {
			return true
		}
	}
	return false
}

// AllowsKey reports whether a mapping field accepts key k.
func (r *FieldRule) AllowsKey(k string) bool {
	if len(r.Keys) == 0 {
		return true
	}
	for _, key := range r.Keys {
		if key == k {
			return true
		}
	}
	return false
}

// NormalizeItem returns the normal form of a list item: trimmed, NFC, and
// lowercased unless the rule preserves case.
func (r *FieldRule) NormalizeItem(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if r.PreserveCase {
		return s
	}
	// Casers are stateful; one per call keeps the rule safe for concurrent use.
	return cases.Lower(language.Und).String(s)
}

// Contract is the closed set of field rules for one content kind.
type Contract struct {
	ID          string
	Description string

	// ListRoot names a string_list field that a bare top-level JSON array
	// is mapped onto. Empty means top-level arrays are parse failures.
	ListRoot string

	Fields []FieldRule

	// Fallback overrides field defaults in the full-record default.
	Fallback ir.Mapping
}

// Field returns the rule for name.
func (c *Contract) Field(name string) (*FieldRule, bool) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames returns field names in declaration order.
func (c *Contract) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}
