package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/validate"
)

// Validation error codes (E100-E199)
const (
	// Contract errors (E101-E103)
	ErrContractIDInvalid = "E101" // id must be lower snake case
	ErrContractNoFields  = "E102" // at least one field required
	ErrDuplicateField    = "E103" // duplicate field name

	// Field rule errors (E104-E109)
	ErrInvalidFieldType    = "E104" // unknown semantic type
	ErrInvalidBounds       = "E105" // negative bound or min above max
	ErrInvalidEnum         = "E106" // enum empty or with duplicates
	ErrMisplacedConstraint = "E107" // constraint does not apply to the type
	ErrDefaultMissing      = "E108" // every rule needs a default
	ErrDefaultInvalid      = "E109" // default must satisfy its own rule

	// Record-level errors (E110-E111)
	ErrInvalidListRoot = "E110" // list_root must name a string_list field
	ErrInvalidFallback = "E111" // fallback key unknown or value invalid
)

var contractIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidationError represents a contract static check failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate statically checks a compiled contract.
// Returns all errors found (does not fail-fast).
func Validate(c *contract.Contract) []ValidationError {
	var errs []ValidationError

	// E101: id format
	if !contractIDPattern.MatchString(c.ID) {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("contract id %q must match %s", c.ID, contractIDPattern),
			Code:    ErrContractIDInvalid,
		})
	}

	// E102: at least one field
	if len(c.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   "fields",
			Message: "at least one field is required",
			Code:    ErrContractNoFields,
		})
	}

	names := make(map[string]bool)
	for i := range c.Fields {
		rule := &c.Fields[i]
		path := fmt.Sprintf("fields.%s", rule.Name)

		// E103: duplicate field name
		if names[rule.Name] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate field name: %q", rule.Name),
				Code:    ErrDuplicateField,
			})
		}
		names[rule.Name] = true

		errs = append(errs, validateRule(rule, path)...)
	}

	errs = append(errs, validateListRoot(c)...)
	errs = append(errs, validateFallback(c)...)

	return errs
}

// validateRule checks one field rule's type, bounds and default.
func validateRule(rule *contract.FieldRule, path string) []ValidationError {
	var errs []ValidationError

	// E104: valid semantic type
	if !rule.Type.Valid() {
		return append(errs, ValidationError{
			Field:   path + ".type",
			Message: fmt.Sprintf("invalid type %q, must be string, string_list, enum, integer or mapping", rule.Type),
			Code:    ErrInvalidFieldType,
		})
	}

	errs = append(errs, validateBounds(rule, path)...)
	errs = append(errs, validatePlacement(rule, path)...)

	// E106: enum members
	if rule.Type == contract.TypeEnum {
		if len(rule.Enum) == 0 {
			errs = append(errs, ValidationError{
				Field:   path + ".enum",
				Message: "enum field requires at least one member",
				Code:    ErrInvalidEnum,
			})
		}
		seen := make(map[string]bool)
		for _, e := range rule.Enum {
			if seen[e] {
				errs = append(errs, ValidationError{
					Field:   path + ".enum",
					Message: fmt.Sprintf("duplicate enum member: %q", e),
					Code:    ErrInvalidEnum,
				})
			}
			seen[e] = true
		}
	}

	// E108/E109: default present and valid
	if rule.Default == nil {
		errs = append(errs, ValidationError{
			Field:   path + ".default",
			Message: "default is required",
			Code:    ErrDefaultMissing,
		})
	} else if v, bad := validate.Field(rule, rule.Default); bad {
		errs = append(errs, ValidationError{
			Field:   path + ".default",
			Message: fmt.Sprintf("default violates its rule: %s (%s)", v.Kind, v.Detail),
			Code:    ErrDefaultInvalid,
		})
	}

	return errs
}

func validateBounds(rule *contract.FieldRule, path string) []ValidationError {
	var errs []ValidationError

	pairs := []struct {
		name     string
		min, max int
	}{
		{"len", rule.MinLen, rule.MaxLen},
		{"items", rule.MinItems, rule.MaxItems},
	}
	for _, p := range pairs {
		if p.min < 0 || p.max < 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.min_%s", path, p.name),
				Message: "bounds must not be negative",
				Code:    ErrInvalidBounds,
			})
			continue
		}
		if p.max > 0 && p.min > p.max {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.min_%s", path, p.name),
				Message: fmt.Sprintf("min_%s %d exceeds max_%s %d", p.name, p.min, p.name, p.max),
				Code:    ErrInvalidBounds,
			})
		}
	}

	if rule.ItemMaxLen < 0 {
		errs = append(errs, ValidationError{
			Field:   path + ".item_max_len",
			Message: "bounds must not be negative",
			Code:    ErrInvalidBounds,
		})
	}

	if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
		errs = append(errs, ValidationError{
			Field:   path + ".min",
			Message: fmt.Sprintf("min %d exceeds max %d", *rule.Min, *rule.Max),
			Code:    ErrInvalidBounds,
		})
	}

	return errs
}

// validatePlacement rejects constraints declared on a type they cannot apply to.
func validatePlacement(rule *contract.FieldRule, path string) []ValidationError {
	var errs []ValidationError
	misplaced := func(key string) {
		errs = append(errs, ValidationError{
			Field:   path + "." + key,
			Message: fmt.Sprintf("%s does not apply to %s fields", key, rule.Type),
			Code:    ErrMisplacedConstraint,
		})
	}

	if rule.Type != contract.TypeString {
		if rule.MinLen != 0 {
			misplaced("min_len")
		}
		if rule.MaxLen != 0 {
			misplaced("max_len")
		}
		if rule.CollapseWhitespace {
			misplaced("collapse_whitespace")
		}
	}
	if !rule.Type.IsList() {
		if rule.MinItems != 0 {
			misplaced("min_items")
		}
		if rule.MaxItems != 0 {
			misplaced("max_items")
		}
		if rule.ItemPattern != nil {
			misplaced("item_pattern")
		}
		if rule.ItemMaxLen != 0 {
			misplaced("item_max_len")
		}
		if rule.PreserveCase {
			misplaced("preserve_case")
		}
	}
	if rule.Type != contract.TypeInteger {
		if rule.Min != nil {
			misplaced("min")
		}
		if rule.Max != nil {
			misplaced("max")
		}
	}
	if rule.Type != contract.TypeEnum && len(rule.Enum) > 0 {
		misplaced("enum")
	}
	if rule.Type != contract.TypeMapping && len(rule.Keys) > 0 {
		misplaced("keys")
	}

	return errs
}

// validateListRoot checks that list_root names a string_list field.
func validateListRoot(c *contract.Contract) []ValidationError {
	if c.ListRoot == "" {
		return nil
	}
	rule, ok := c.Field(c.ListRoot)
	if !ok || rule.Type != contract.TypeStringList {
		return []ValidationError{{
			Field:   "list_root",
			Message: fmt.Sprintf("list_root %q must name a string_list field", c.ListRoot),
			Code:    ErrInvalidListRoot,
		}}
	}
	return nil
}

// validateFallback checks that every override names a field and satisfies it.
func validateFallback(c *contract.Contract) []ValidationError {
	var errs []ValidationError
	for _, k := range c.Fallback.SortedKeys() {
		rule, ok := c.Field(k)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   "fallback." + k,
				Message: "fallback names an undeclared field",
				Code:    ErrInvalidFallback,
			})
			continue
		}
		if v, bad := validate.Field(rule, c.Fallback[k]); bad {
			errs = append(errs, ValidationError{
				Field:   "fallback." + k,
				Message: fmt.Sprintf("fallback violates its rule: %s (%s)", v.Kind, v.Detail),
				Code:    ErrInvalidFallback,
			})
		}
	}
	return errs
}
