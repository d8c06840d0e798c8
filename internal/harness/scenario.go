package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// validName matches scenario names. The name becomes the store file name and
// the golden file name, so it is restricted to a safe alphabet.
var validName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Step operations.
const (
	OpAttach    = "attach"
	OpDetach    = "detach"
	OpInsert    = "insert"
	OpSet       = "set"
	OpSave      = "save"
	OpRollback  = "rollback"
	OpFetch     = "fetch"
	OpAdopt     = "adopt"
	OpDelete    = "delete"
	OpDeleteAll = "delete_all"
	OpPurge     = "purge"
	OpReopen    = "reopen"
)

// Scenario is a conformance test scenario loaded from YAML.
type Scenario struct {
	// Name identifies the scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description says what the scenario demonstrates.
	Description string `yaml:"description"`

	// Seed is an optional store snapshot copied in before the first open.
	// A relative path is resolved against the scenario file's directory.
	Seed string `yaml:"seed,omitempty"`

	// Steps run in order against one coordinator.
	Steps []Step `yaml:"steps"`
}

// Step is one coordinator operation plus its expectations.
//
// Which fields apply depends on Op:
//
//	attach      child_of_primary, share_queue
//	detach      -
//	insert      kind, fields, context, as
//	set         record, fields
//	save        context
//	rollback    context
//	fetch       kind, where, sort, context, as, expect_count, expect_fields
//	adopt       record, context, as
//	delete      record, context (omit to delete in the record's own context)
//	delete_all  kind, where, context, expect_count
//	purge       kind, where, context, expect_count
//	reopen      -
//
// Every step may carry expect_error, the error code the step must fail with.
type Step struct {
	Op string `yaml:"op"`

	// Context is "primary" or "supplementary". Empty means primary.
	Context string `yaml:"context,omitempty"`

	Kind   string         `yaml:"kind,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// Record names a record bound earlier with As.
	Record string `yaml:"record,omitempty"`

	// As binds the step's record (first record for fetch) to an alias.
	As string `yaml:"as,omitempty"`

	Where string   `yaml:"where,omitempty"`
	Sort  []string `yaml:"sort,omitempty"`

	ChildOfPrimary bool `yaml:"child_of_primary,omitempty"`
	ShareQueue     bool `yaml:"share_queue,omitempty"`

	ExpectCount  *int             `yaml:"expect_count,omitempty"`
	ExpectFields []map[string]any `yaml:"expect_fields,omitempty"`
	ExpectError  string           `yaml:"expect_error,omitempty"`
}

// LoadScenario loads and validates a scenario from a YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Seed != "" && !filepath.IsAbs(scenario.Seed) {
		scenario.Seed = filepath.Join(filepath.Dir(path), scenario.Seed)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

// ParseScenario decodes a scenario without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
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
	if !validName.MatchString(s.Name) {
		return fmt.Errorf("name %q: only letters, digits, '_' and '-' are allowed", s.Name)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Seed != "" {
		if _, err := os.Stat(s.Seed); os.IsNotExist(err) {
			return fmt.Errorf("seed file not found: %s", s.Seed)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, st *Step) error {
	switch st.Context {
	case "", "primary", "supplementary":
	default:
		return fmt.Errorf("steps[%d]: context must be primary or supplementary, got %q", index, st.Context)
	}

	switch st.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpAttach, OpDetach, OpSave, OpRollback, OpReopen:
	case OpInsert:
		if st.Kind == "" {
			return fmt.Errorf("steps[%d]: kind is required for insert", index)
		}
	case OpSet:
		if st.Record == "" {
			return fmt.Errorf("steps[%d]: record is required for set", index)
		}
		if len(st.Fields) == 0 {
			return fmt.Errorf("steps[%d]: fields are required for set", index)
		}
	case OpFetch, OpDeleteAll, OpPurge:
		if st.Kind == "" {
			return fmt.Errorf("steps[%d]: kind is required for %s", index, st.Op)
		}
	case OpAdopt, OpDelete:
		if st.Record == "" {
			return fmt.Errorf("steps[%d]: record is required for %s", index, st.Op)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if len(st.ExpectFields) > 0 && st.Op != OpFetch {
		return fmt.Errorf("steps[%d]: expect_fields only applies to fetch", index)
	}
	if st.ExpectCount != nil {
		switch st.Op {
		case OpFetch, OpDeleteAll, OpPurge:
		default:
			return fmt.Errorf("steps[%d]: expect_count does not apply to %s", index, st.Op)
		}
		if *st.ExpectCount < 0 {
			return fmt.Errorf("steps[%d]: expect_count must be non-negative", index)
		}
	}

	return nil
}
