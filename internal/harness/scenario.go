package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/execgraph/internal/trace"
)

// DefaultTimeout bounds a scenario run that sets no timeout.
const DefaultTimeout = 10 * time.Second

// Scenario is one graph run with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the graph file to run. LoadScenario resolves it relative to
	// the scenario file.
	Graph string `yaml:"graph"`

	// Start restricts the run to the subgraph reachable from this node.
	Start string `yaml:"start,omitempty"`

	// Timeout cancels the run; zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Expect Expectation `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expectation describes the run report. Nil lists are not checked.
type Expectation struct {
	Status     string   `yaml:"status"`
	Executed   []string `yaml:"executed,omitempty"`
	Failed     []string `yaml:"failed,omitempty"`
	Unexecuted []string `yaml:"unexecuted,omitempty"`
}

// Run statuses a scenario can expect.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusCycle     = "cycle"
	StatusInvalid   = "invalid"
)

// Assertion checks the recorded trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is a trace kind such as node_enter (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Node restricts matching to one node.
	Node string `yaml:"node,omitempty"`

	// Port is "port" for trace_contains on data_write, "node.port" for
	// output.
	Port string `yaml:"port,omitempty"`

	// Value is compared numerically when both sides are numbers.
	Value any `yaml:"value,omitempty"`

	// Count is the exact number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events are "kind node" pairs in expected order (trace_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertOutput        = "output"
)

// LoadScenario reads a scenario file, rejecting unknown fields, and
// resolves its graph path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if sc.Graph != "" && !filepath.IsAbs(sc.Graph) {
		sc.Graph = filepath.Join(filepath.Dir(path), sc.Graph)
	}
	if _, err := os.Stat(sc.Graph); err != nil {
		return nil, fmt.Errorf("invalid scenario: graph file not found: %s", sc.Graph)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario without touching the
// filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	switch s.Expect.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusCycle, StatusInvalid:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("expect.status %q is not one of succeeded, failed, cancelled, cycle, invalid", s.Expect.Status)
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if _, err := trace.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two events", index)
		}
		for _, e := range a.Events {
			if _, _, err := parseEventRef(e); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertOutput:
		if _, _, err := splitPort(a.Port); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s *Scenario) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}
