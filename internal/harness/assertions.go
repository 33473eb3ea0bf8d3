package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/execgraph/internal/trace"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface. The full trace is appended so a
// failing scenario can be debugged from the test output alone.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nfull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Detail)
		}
	}
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(r.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(r.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(r.Trace, a)
	case AssertOutput:
		return assertOutput(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matches reports whether ev has the given kind and, when set, node.
func matches(ev TraceEvent, kind, node string) bool {
	return ev.Kind == kind && (node == "" || ev.Node == node)
}

func assertTraceContains(events []TraceEvent, a Assertion) error {
	for _, ev := range events {
		if !matches(ev, a.Kind, a.Node) {
			continue
		}
		if a.Port != "" && ev.Port != a.Port {
			continue
		}
		if a.Value != nil && !valuesEqual(ev.Value, a.Value) {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeMatch(a),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

func describeMatch(a Assertion) string {
	parts := []string{a.Kind}
	if a.Node != "" {
		parts = append(parts, "node="+a.Node)
	}
	if a.Port != "" {
		parts = append(parts, "port="+a.Port)
	}
	if a.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", a.Value))
	}
	return strings.Join(parts, " ")
}

// assertTraceOrder checks the first occurrence of each event reference
// appears in the listed order. Intervening events are allowed.
func assertTraceOrder(events []TraceEvent, a Assertion) error {
	positions := make([]int, len(a.Events))
	for i, ref := range a.Events {
		kind, node, err := parseEventRef(ref)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if matches(ev, kind, node) {
				positions[i] = int(ev.Seq)
				break
			}
		}
		if positions[i] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   "missing event: " + ref,
				Trace:    events,
			}
		}
	}
	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					a.Events[i-1], positions[i-1], a.Events[i], positions[i]),
				Trace: events,
			}
		}
	}
	return nil
}

func assertTraceCount(events []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range events {
		if matches(ev, a.Kind, a.Node) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s appears %d times", describeMatch(a), a.Count),
			Actual:   fmt.Sprintf("appears %d times", count),
			Trace:    events,
		}
	}
	return nil
}

func assertOutput(r *Result, a Assertion) error {
	got, ok := r.Outputs[a.Port]
	if !ok {
		return &AssertionError{
			Type:     AssertOutput,
			Expected: fmt.Sprintf("%s = %v", a.Port, a.Value),
			Actual:   "never written",
			Trace:    r.Trace,
		}
	}
	if !valuesEqual(got, a.Value) {
		return &AssertionError{
			Type:     AssertOutput,
			Expected: fmt.Sprintf("%s = %v", a.Port, a.Value),
			Actual:   fmt.Sprintf("%s = %v", a.Port, got),
			Trace:    r.Trace,
		}
	}
	return nil
}

// parseEventRef splits "node_enter sum" into its kind and node. The node
// is optional.
func parseEventRef(ref string) (kind, node string, err error) {
	fields := strings.Fields(ref)
	if len(fields) == 0 || len(fields) > 2 {
		return "", "", fmt.Errorf("event %q: want \"kind [node]\"", ref)
	}
	if _, err := trace.ParseKind(fields[0]); err != nil {
		return "", "", fmt.Errorf("event %q: %w", ref, err)
	}
	if len(fields) == 2 {
		node = fields[1]
	}
	return fields[0], node, nil
}

// splitPort splits "node.port" at the last dot.
func splitPort(s string) (node, port string, err error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("port %q: want \"node.port\"", s)
	}
	return s[:i], s[i+1:], nil
}

// valuesEqual compares numbers by value regardless of their Go type, so a
// YAML 14 matches an int64 14 produced by a node.
func valuesEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
