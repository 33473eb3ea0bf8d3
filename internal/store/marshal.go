package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// payload holds the variant-specific fields of an event. Fields a variant
// does not use are left empty and omitted from the stored JSON.
type payload struct {
	Port      string         `json:"port,omitempty"`
	Value     any            `json:"value,omitempty"`
	ValueType string         `json:"value_type,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	To        string         `json:"to,omitempty"`
	EpochFrom int64          `json:"epoch_from,omitempty"`
	EpochTo   int64          `json:"epoch_to,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// marshalPayload converts the variant fields of ev to JSON TEXT.
// Map keys are sorted by encoding/json, so equal events encode equally.
func marshalPayload(ev trace.Event) (string, error) {
	var p payload
	switch e := ev.(type) {
	case trace.NodeEnter, trace.NodeLeave:
	case trace.DataWrite:
		p.Port = e.Port
		p.Value = e.Value.Value()
		p.ValueType = string(e.Value.Type())
		p.Meta = e.Value.Metadata()
	case trace.Flow:
		p.To = e.To.String()
	case trace.ExecutionReset:
		p.EpochFrom = e.EpochFrom
		p.EpochTo = e.EpochTo
	case trace.NodeError:
		p.Message = e.Message
	default:
		return "", fmt.Errorf("marshal payload: unsupported event %T", ev)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalEvent rebuilds an event from its stored columns.
func unmarshalEvent(kind, nodeID, at, data string) (trace.Event, error) {
	k, err := trace.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	id, err := parseOptionalID(nodeID)
	if err != nil {
		return nil, fmt.Errorf("unmarshal event node: %w", err)
	}
	ts, err := time.Parse(timeLayout, at)
	if err != nil {
		return nil, fmt.Errorf("unmarshal event time: %w", err)
	}

	var p payload
	if data != "" && data != "{}" {
		dec := json.NewDecoder(strings.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	h := trace.Header{Node: id, At: ts}
	switch k {
	case trace.KindNodeEnter:
		return trace.NodeEnter{Header: h}, nil
	case trace.KindNodeLeave:
		return trace.NodeLeave{Header: h}, nil
	case trace.KindDataWrite:
		t := graph.DataTypeID(p.ValueType)
		v, err := restoreValue(p.Value, t)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s.%s: %w", id.Short(), p.Port, err)
		}
		meta, _ := normalizeNumbers(p.Meta).(map[string]any)
		return trace.DataWrite{Header: h, Port: p.Port, Value: graph.NewDataValue(v, t, meta)}, nil
	case trace.KindFlow:
		to, err := parseOptionalID(p.To)
		if err != nil {
			return nil, fmt.Errorf("unmarshal flow target: %w", err)
		}
		return trace.Flow{Header: h, To: to}, nil
	case trace.KindExecutionReset:
		return trace.ExecutionReset{Header: h, EpochFrom: p.EpochFrom, EpochTo: p.EpochTo}, nil
	case trace.KindNodeError:
		return trace.NodeError{Header: h, Message: p.Message}, nil
	default:
		return nil, fmt.Errorf("unmarshal event: unhandled kind %s", k)
	}
}

func parseOptionalID(s string) (graph.NodeID, error) {
	if s == "" {
		return graph.NodeID{}, nil
	}
	return graph.ParseNodeID(s)
}

// restoreValue maps a decoded JSON value back onto the Go type the tag
// implies. JSON has one number type, so int, uint, float and char values
// need the tag to come back as what the node wrote.
func restoreValue(v any, t graph.DataTypeID) (any, error) {
	n, isNum := v.(json.Number)
	switch {
	case t == graph.TypeInt && isNum:
		return n.Int64()
	case t == graph.TypeUInt && isNum:
		return strconv.ParseUint(n.String(), 10, 64)
	case t == graph.TypeFloat && isNum:
		return n.Float64()
	case t == graph.TypeChar && isNum:
		r, err := n.Int64()
		return rune(r), err
	case t == graph.TypeDateTime:
		if s, ok := v.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts, nil
			}
		}
	}
	return normalizeNumbers(v), nil
}

// normalizeNumbers replaces json.Number with int64 when it fits and
// float64 otherwise, recursing into maps and slices.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if x == nil {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
