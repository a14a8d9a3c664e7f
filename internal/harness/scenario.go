package harness

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario describes one list replicated between a server and a client
// endpoint and the steps applied to it.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// List declares the replicated list.
	List ListSpec `yaml:"list"`

	// Steps run in order. Each step is fully propagated before the next.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect Expect `yaml:"expect,omitempty"`
}

// ListSpec declares the list both endpoints bind.
type ListSpec struct {
	// ID is the static id shared by both replicas.
	ID int `yaml:"id"`

	// Kind is "string" for plain values or "dynamic" for bindable items
	// carrying a flag. Defaults to "string".
	Kind string `yaml:"kind,omitempty"`

	// Name is the bind name. Defaults to "top".
	Name string `yaml:"name,omitempty"`
}

// Step is one operation on one endpoint's replica.
type Step struct {
	Side   string `yaml:"side"`
	Op     string `yaml:"op"`
	Index  *int   `yaml:"index,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Values []any  `yaml:"values,omitempty"`

	// Error is the expected error code. An empty Error expects success.
	Error string `yaml:"error,omitempty"`
}

// Expect holds the expected final state. Nil fields are not checked.
type Expect struct {
	Server []string `yaml:"server,omitempty"`
	Client []string `yaml:"client,omitempty"`
	Log    []string `yaml:"log,omitempty"`
}

// List kinds.
const (
	KindString  = "string"
	KindDynamic = "dynamic"
)

// Step operations.
const (
	OpAdd     = "add"
	OpAddAll  = "add_all"
	OpSet     = "set"
	OpRemove  = "remove"
	OpClear   = "clear"
	OpBind    = "bind"
	OpAdvise  = "advise"
	OpView    = "view"
	OpSetFlag = "set_flag"
)

// Endpoint sides.
const (
	SideServer = "server"
	SideClient = "client"
)

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// LoadScenario reads, schema-checks and decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario schema-checks and decodes scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := ValidateSchema(doc); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}

	if scenario.List.Kind == "" {
		scenario.List.Kind = KindString
	}
	if scenario.List.Name == "" {
		scenario.List.Name = "top"
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Builtin loads a scenario shipped with the package.
func Builtin(name string) (*Scenario, error) {
	data, err := builtinFS.ReadFile(path.Join("scenarios", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown builtin scenario %q", name)
	}
	return ParseScenario(data)
}

// Builtins lists the names of the shipped scenarios.
func Builtins() []string {
	entries, _ := builtinFS.ReadDir("scenarios")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// validateScenario checks what the schema cannot: per-operation arguments
// and value types that depend on the list kind.
func validateScenario(s *Scenario) error {
	for i, step := range s.Steps {
		if err := validateStep(s.List.Kind, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(kind string, step Step) error {
	switch step.Op {
	case OpSet, OpRemove, OpSetFlag:
		if step.Index == nil {
			return fmt.Errorf("index is required for %s", step.Op)
		}
	}

	switch step.Op {
	case OpAdd, OpSet:
		return checkValue(kind, step.Op, step.Value)
	case OpAddAll:
		if len(step.Values) == 0 {
			return fmt.Errorf("values is required for %s", step.Op)
		}
		for _, v := range step.Values {
			if err := checkValue(kind, step.Op, v); err != nil {
				return err
			}
		}
	case OpSetFlag:
		if kind != KindDynamic {
			return fmt.Errorf("%s needs a %s list", step.Op, KindDynamic)
		}
		return checkValue(kind, step.Op, step.Value)
	}
	return nil
}

func checkValue(kind, op string, v any) error {
	switch kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s on a string list needs a string value, got %s", op, formatValue(v))
		}
	case KindDynamic:
		if v == nil {
			return nil
		}
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s on a dynamic list needs a bool or null value, got %s", op, formatValue(v))
		}
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
