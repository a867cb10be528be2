package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/filemock/internal/store"
)

// Step operations.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// Scenario describes one store session: the persistence file it starts from,
// the operations it performs and the file it should leave behind.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is written as the persistence file before the store opens.
	// When absent no file exists and the load fails.
	Initial map[string]map[string]any `yaml:"initial,omitempty"`

	// SaveOnClose enables persistence on close.
	SaveOnClose bool `yaml:"save_on_close,omitempty"`

	// Steps run in order once the load has settled.
	Steps []Step `yaml:"steps"`

	// Final is compared against the persistence file after close.
	// Requires SaveOnClose.
	Final map[string]map[string]any `yaml:"final,omitempty"`
}

// Step is one get, set or delete.
type Step struct {
	Op      string         `yaml:"op"`
	Key     string         `yaml:"key"`
	Version int64          `yaml:"version,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"`

	// Expect is optional. Without it the step only has to run.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the result of a step. Unset fields are not checked.
type Expect struct {
	// Found applies to get.
	Found *bool `yaml:"found,omitempty"`

	// Version and Data apply to a get that found a record.
	Version *int64         `yaml:"version,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"`

	// Error is the expected error code, e.g. INVALID_KEY.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

var knownCodes = map[string]bool{
	string(store.CodeInvalidKey):      true,
	string(store.CodeLoadFailure):     true,
	string(store.CodeSaveFailure):     true,
	string(store.CodeMalformedRecord): true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}
	if s.Final != nil && !s.SaveOnClose {
		return fmt.Errorf("final requires save_on_close")
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpGet, OpDelete:
			if step.Data != nil || step.Version != 0 {
				return fmt.Errorf("steps[%d]: %s takes no version or data", i, step.Op)
			}
		case OpSet:
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}

		if step.Expect == nil {
			continue
		}
		if step.Expect.Error != "" && !knownCodes[step.Expect.Error] {
			return fmt.Errorf("steps[%d]: unknown error code %q", i, step.Expect.Error)
		}
		if step.Op != OpGet && (step.Expect.Found != nil || step.Expect.Version != nil || step.Expect.Data != nil) {
			return fmt.Errorf("steps[%d]: found, version and data expectations apply to get only", i)
		}
	}
	return nil
}
