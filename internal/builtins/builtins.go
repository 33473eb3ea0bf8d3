package builtins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/registry"
)

// DefaultDelay applies when a Delay node has no "ms" property.
const DefaultDelay = 100 * time.Millisecond

func port(name string, dir graph.PortDirection, t graph.DataTypeID) graph.PortMetadata {
	return graph.PortMetadata{Name: name, Direction: dir, Kind: graph.Data, DataType: t}
}

// Register adds every builtin node type to r.
func Register(r *registry.Registry) error {
	entries := []registry.Entry{
		{
			Name:        "Constant",
			Description: `emit the "value" property on port "value"`,
			Ports:       []graph.PortMetadata{port("value", graph.Output, graph.TypeAny)},
			PortsFor:    constantPorts,
			New:         newConstant,
		},
		{
			Name:        "Concat",
			Description: `join string inputs with the "separator" property`,
			Ports: []graph.PortMetadata{
				port("left", graph.Input, graph.TypeString),
				port("right", graph.Input, graph.TypeString),
				port("result", graph.Output, graph.TypeString),
			},
			New: newConcat,
		},
		{
			Name:        "Sum",
			Description: "integer a + b",
			Ports: []graph.PortMetadata{
				port("a", graph.Input, graph.TypeInt),
				port("b", graph.Input, graph.TypeInt),
				port("sum", graph.Output, graph.TypeInt),
			},
			New: simple(sum),
		},
		{
			Name:        "Multiply",
			Description: "float a * b",
			Ports: []graph.PortMetadata{
				port("a", graph.Input, graph.TypeFloat),
				port("b", graph.Input, graph.TypeFloat),
				port("product", graph.Output, graph.TypeFloat),
			},
			New: simple(multiply),
		},
		{
			Name:        "Double",
			Description: "integer in * 2",
			Ports: []graph.PortMetadata{
				port("in", graph.Input, graph.TypeInt),
				port("out", graph.Output, graph.TypeInt),
			},
			New: simple(double),
		},
		{
			Name:        "Delay",
			Description: `wait "ms" milliseconds then emit done=true`,
			Ports: []graph.PortMetadata{
				port("trigger", graph.Input, graph.TypeAny),
				port("done", graph.Output, graph.TypeBool),
			},
			New: newDelay,
		},
	}
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin node types.
func NewRegistry() *registry.Registry {
	r := registry.New()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

type execFunc func(ctx context.Context, rc engine.RuntimeContext) error

func simple(fn execFunc) registry.Constructor {
	return func(m graph.NodeModel) (engine.Node, error) {
		return engine.NewFuncNode(m.ID, fn), nil
	}
}

// constantType is the "type" property, else the type inferred from "value".
func constantType(props map[string]any) graph.DataTypeID {
	if t, ok := props["type"].(string); ok && t != "" {
		return graph.DataTypeID(t)
	}
	if raw, ok := props["value"]; ok {
		return inferType(raw)
	}
	return graph.TypeAny
}

// constantPorts types the output port after the value, so a constant 3
// links to an int input.
func constantPorts(props map[string]any) []graph.PortMetadata {
	return []graph.PortMetadata{port("value", graph.Output, constantType(props))}
}

func newConstant(m graph.NodeModel) (engine.Node, error) {
	raw, ok := m.Properties["value"]
	if !ok {
		return nil, fmt.Errorf(`constant needs a "value" property`)
	}
	v := graph.NewDataValue(raw, constantType(m.Properties), nil)
	return engine.NewFuncNode(m.ID, func(_ context.Context, rc engine.RuntimeContext) error {
		rc.SetOutput("value", v)
		return nil
	}), nil
}

func newConcat(m graph.NodeModel) (engine.Node, error) {
	sep, _ := m.Properties["separator"].(string)
	trim, _ := m.Properties["trim"].(bool)
	skipEmpty, _ := m.Properties["ignore_empty"].(bool)
	ports := m.InputPorts()

	return engine.NewFuncNode(m.ID, func(_ context.Context, rc engine.RuntimeContext) error {
		var parts []string
		for _, p := range ports {
			v := rc.Input(p)
			s := ""
			if !v.IsZero() && v.Value() != nil {
				s = fmt.Sprint(v.Value())
			}
			if trim {
				s = strings.TrimSpace(s)
			}
			if skipEmpty && s == "" {
				continue
			}
			parts = append(parts, s)
		}
		rc.SetOutput("result", graph.NewDataValue(strings.Join(parts, sep), graph.TypeString, nil))
		return nil
	}), nil
}

func sum(_ context.Context, rc engine.RuntimeContext) error {
	a, err := toInt(rc.Input("a"))
	if err != nil {
		return fmt.Errorf("input a: %w", err)
	}
	b, err := toInt(rc.Input("b"))
	if err != nil {
		return fmt.Errorf("input b: %w", err)
	}
	rc.SetOutput("sum", graph.NewDataValue(a+b, graph.TypeInt, nil))
	return nil
}

func multiply(_ context.Context, rc engine.RuntimeContext) error {
	a, err := toFloat(rc.Input("a"))
	if err != nil {
		return fmt.Errorf("input a: %w", err)
	}
	b, err := toFloat(rc.Input("b"))
	if err != nil {
		return fmt.Errorf("input b: %w", err)
	}
	rc.SetOutput("product", graph.NewDataValue(a*b, graph.TypeFloat, nil))
	return nil
}

func double(_ context.Context, rc engine.RuntimeContext) error {
	n, err := toInt(rc.Input("in"))
	if err != nil {
		return fmt.Errorf("input in: %w", err)
	}
	rc.SetOutput("out", graph.NewDataValue(n*2, graph.TypeInt, nil))
	return nil
}

func newDelay(m graph.NodeModel) (engine.Node, error) {
	d := DefaultDelay
	if raw, ok := m.Properties["ms"]; ok {
		ms, err := toInt(graph.NewDataValue(raw, graph.TypeInt, nil))
		if err != nil {
			return nil, fmt.Errorf("delay ms: %w", err)
		}
		if ms < 0 {
			return nil, fmt.Errorf("delay ms must be >= 0, got %d", ms)
		}
		d = time.Duration(ms) * time.Millisecond
	}

	return engine.NewFuncNode(m.ID, func(ctx context.Context, rc engine.RuntimeContext) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		rc.SetOutput("done", graph.NewDataValue(true, graph.TypeBool, nil))
		return nil
	}), nil
}

// inferType maps a decoded property value to a DataTypeID.
func inferType(v any) graph.DataTypeID {
	switch v.(type) {
	case bool:
		return graph.TypeBool
	case int, int8, int16, int32, int64:
		return graph.TypeInt
	case uint, uint8, uint16, uint32, uint64:
		return graph.TypeUInt
	case float32, float64:
		return graph.TypeFloat
	case string:
		return graph.TypeString
	case time.Time:
		return graph.TypeDateTime
	default:
		return graph.TypeAny
	}
}

// toInt reads an integer; an unwritten input counts as zero.
func toInt(v graph.DataValue) (int, error) {
	switch x := v.Value().(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("cannot use %T as int", x)
	}
}

// toFloat reads a number; an unwritten input counts as zero.
func toFloat(v graph.DataValue) (float64, error) {
	switch x := v.Value().(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		n, err := toInt(v)
		if err != nil {
			return 0, fmt.Errorf("cannot use %T as float", x)
		}
		return float64(n), nil
	}
}
