package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/pipeline"
	"github.com/roach88/aiguard/internal/store"
	"github.com/roach88/aiguard/internal/validate"
)

// Scenario defines a pipeline conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Contracts lists extra CUE contract files to register next to the
	// builtin ones. Relative paths resolve against the scenario file.
	Contracts []string `yaml:"contracts,omitempty"`

	// RunID prefixes the run ids handed to each step ("<run_id>-1", ...).
	// Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Steps are validated in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step sends one payload through the pipeline.
// Exactly one of Input and Value is set.
type Step struct {
	Contract   string              `yaml:"contract"`
	Strictness contract.Strictness `yaml:"strictness,omitempty"`

	// Input is raw producer text.
	Input string `yaml:"input,omitempty"`

	// Value is a payload tree, validated without parsing.
	Value interface{} `yaml:"value,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step. Unset fields are
// not checked; an empty list expects no entries.
type ExpectClause struct {
	Outcome string `yaml:"outcome,omitempty"`

	// Record is a subset match against the final record.
	Record map[string]interface{} `yaml:"record,omitempty"`

	Repaired  []string `yaml:"repaired,omitempty"`
	Defaulted []string `yaml:"defaulted,omitempty"`
	Dropped   []string `yaml:"dropped,omitempty"`
	Reason    string   `yaml:"reason,omitempty"`

	// Error expects Validate to fail with a message containing it.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the scenario after every step ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "violation": step reported Kind on Field in its first pass
	// - "path": step went through exactly States
	// - "idempotent": step's record re-validates clean and unchanged
	// - "field_stats": the audit store counts Count events for Field with Outcome
	// - "valid_records": every step's record satisfies its contract
	Type string `yaml:"type"`

	Step    int      `yaml:"step,omitempty"`
	Field   string   `yaml:"field,omitempty"`
	Kind    string   `yaml:"kind,omitempty"`
	States  []string `yaml:"states,omitempty"`
	Outcome string   `yaml:"outcome,omitempty"`
	Count   int      `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertViolation    = "violation"
	AssertPath         = "path"
	AssertIdempotent   = "idempotent"
	AssertFieldStats   = "field_stats"
	AssertValidRecords = "valid_records"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Contract paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Contracts {
		if !filepath.IsAbs(p) {
			scenario.Contracts[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without resolving contract paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range s.Contracts {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("contract file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if step.Contract == "" {
			return fmt.Errorf("steps[%d]: contract is required", i)
		}
		if (step.Input == "") == (step.Value == nil) {
			return fmt.Errorf("steps[%d]: exactly one of input and value is required", i)
		}
		if step.Expect != nil && step.Expect.Outcome != "" && !validOutcome(step.Expect.Outcome) {
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validOutcome(o string) bool {
	switch pipeline.Outcome(o) {
	case pipeline.OutcomeClean, pipeline.OutcomeRepaired, pipeline.OutcomeDefaulted, pipeline.OutcomeRecordDefault:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step < 0 || a.Step >= steps {
		return fmt.Errorf("assertions[%d]: step %d out of range", index, a.Step)
	}

	switch a.Type {
	case AssertViolation:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for violation", index)
		}
		if a.Kind != "" && !validKind(a.Kind) {
			return fmt.Errorf("assertions[%d]: unknown violation kind %q", index, a.Kind)
		}
	case AssertPath:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for path", index)
		}
	case AssertIdempotent, AssertValidRecords:
	case AssertFieldStats:
		if a.Field == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: field and outcome are required for field_stats", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for field_stats", index)
		}
		switch a.Outcome {
		case store.FieldRepaired, store.FieldDefaulted, store.FieldRecordDefault, store.FieldUnresolved:
		default:
			return fmt.Errorf("assertions[%d]: unknown field outcome %q", index, a.Outcome)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validKind(k string) bool {
	for _, kind := range validate.Kinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}
