// Package graphfile reads graph definitions from YAML and CUE files and
// builds validated-ready GraphModels with stable, name-derived node ids.
package graphfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/registry"
)

// Load error codes.
const (
	CodeParseFailed  = "E004" // YAML or CUE syntax error
	CodeNotFound     = "E005" // path not found
	CodeBuildFailed  = "E006" // CUE evaluation failed
	CodeBadFormat    = "E007" // unsupported file extension
	CodeInvalidGraph = "E010" // structurally broken definition (names, link syntax)
	CodeUnknownType  = "E011" // node type not in the registry
	CodeUnknownNode  = "E012" // a name that is not in the graph
)

// LoadError is a problem with a graph file, before any graph validation.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorCode returns Code.
func (e *LoadError) ErrorCode() string { return e.Code }

// File is the on-disk graph definition. The same shape is read from
// YAML and from CUE.
type File struct {
	Name  string     `yaml:"name" json:"name"`
	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
	Links []LinkSpec `yaml:"links" json:"links"`
}

// NodeSpec declares one node. Ports default to the registry entry's ports
// when omitted.
type NodeSpec struct {
	Name       string         `yaml:"name" json:"name"`
	Type       string         `yaml:"type" json:"type"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
	Ports      []PortSpec     `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// PortSpec declares a port explicitly. Direction is input or output; Kind
// defaults to data and Type to any.
type PortSpec struct {
	Name      string `yaml:"name" json:"name"`
	Direction string `yaml:"direction" json:"direction"`
	Kind      string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
	Single    bool   `yaml:"single,omitempty" json:"single,omitempty"`
}

// LinkSpec connects "node.port" to "node.port".
type LinkSpec struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Graph is a built GraphModel plus the declared node names.
type Graph struct {
	Name  string
	Path  string
	Model *graph.GraphModel
	Names map[graph.NodeID]string
	IDs   map[string]graph.NodeID
	// Order is node names in declaration order.
	Order []string
}

// Label returns the declared name of id, or its short form.
func (l *Graph) Label(id graph.NodeID) string {
	if id.IsZero() {
		return "<all>"
	}
	if n, ok := l.Names[id]; ok {
		return n
	}
	return id.Short()
}

// Lookup resolves a declared node name.
func (l *Graph) Lookup(name string) (graph.NodeID, error) {
	id, ok := l.IDs[NormalizeName(name)]
	if !ok {
		return graph.NodeID{}, &LoadError{
			Code:    CodeUnknownNode,
			Message: fmt.Sprintf("no node named %q (have %s)", name, strings.Join(l.Order, ", ")),
		}
	}
	return id, nil
}

// NormalizeName trims and NFC-normalizes a node name so that visually equal
// names map to the same id.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Load reads a .yaml/.yml or .cue graph file.
func Load(path string, reg *registry.Registry) (*Graph, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: CodeNotFound, Message: "graph file not found", Path: path}
	}
	if err != nil {
		return nil, &LoadError{Code: CodeNotFound, Message: "read graph file", Path: path, Err: err}
	}

	var file *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err = ParseYAML(bytes.NewReader(data))
	case ".cue":
		file, err = ParseCUE(data, path)
	default:
		return nil, &LoadError{Code: CodeBadFormat, Message: "unsupported extension (want .yaml, .yml or .cue)", Path: path}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = path
		}
		return nil, err
	}

	lg, err := Build(file, reg)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = path
		}
		return nil, err
	}
	lg.Path = path
	return lg, nil
}

// ParseYAML decodes a graph file, rejecting unknown fields.
func ParseYAML(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: CodeParseFailed, Message: "empty graph file"}
		}
		return nil, &LoadError{Code: CodeParseFailed, Message: "parse YAML", Err: err}
	}
	return &file, nil
}

// ParseCUE evaluates a CUE source and decodes it into a graph file.
// The top-level value must be the graph itself.
func ParseCUE(src []byte, filename string) (*File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: CodeParseFailed, Message: "compile CUE", Err: err}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: CodeBuildFailed, Message: "CUE value is not concrete", Err: err}
	}

	var file File
	if err := v.Decode(&file); err != nil {
		return nil, &LoadError{Code: CodeBuildFailed, Message: "decode CUE", Err: err}
	}
	return &file, nil
}

// Build turns a decoded file into a GraphModel.
//
// Node ids derive from names, so the same file always yields the same ids
// and fingerprint. Links naming undeclared nodes are kept; the validator
// reports them.
func Build(file *File, reg *registry.Registry) (*Graph, error) {
	if file == nil {
		return nil, &LoadError{Code: CodeInvalidGraph, Message: "no graph definition"}
	}
	lg := &Graph{
		Name:  NormalizeName(file.Name),
		Names: make(map[graph.NodeID]string, len(file.Nodes)),
		IDs:   make(map[string]graph.NodeID, len(file.Nodes)),
	}

	nodes := make([]graph.NodeModel, 0, len(file.Nodes))
	for i, ns := range file.Nodes {
		name := NormalizeName(ns.Name)
		if name == "" {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("nodes[%d]: name is required", i)}
		}
		if strings.Contains(name, ".") {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("node %q: name must not contain '.'", name)}
		}
		if _, dup := lg.IDs[name]; dup {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("duplicate node name %q", name)}
		}

		ports, err := nodePorts(ns, reg)
		if err != nil {
			return nil, err
		}

		id := graph.NodeIDFromName(name)
		lg.IDs[name] = id
		lg.Names[id] = name
		lg.Order = append(lg.Order, name)
		nodes = append(nodes, graph.NodeModel{
			ID:          id,
			RuntimeType: strings.TrimSpace(ns.Type),
			Ports:       ports,
			Properties:  ns.Properties,
		})
	}

	links := make([]graph.LinkModel, 0, len(file.Links))
	for i, ls := range file.Links {
		fromNode, fromPort, err := splitEndpoint(ls.From)
		if err != nil {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("links[%d].from", i), Err: err}
		}
		toNode, toPort, err := splitEndpoint(ls.To)
		if err != nil {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("links[%d].to", i), Err: err}
		}
		links = append(links, graph.LinkModel{
			FromNode: lg.idFor(fromNode),
			FromPort: fromPort,
			ToNode:   lg.idFor(toNode),
			ToPort:   toPort,
		})
	}

	model, err := graph.NewGraphModel(nodes, links)
	if err != nil {
		return nil, &LoadError{Code: CodeInvalidGraph, Message: "build graph", Err: err}
	}
	lg.Model = model
	return lg, nil
}

// idFor returns the id of a declared node, or the id the name would have.
// Undeclared names are remembered so diagnostics can print them.
func (l *Graph) idFor(name string) graph.NodeID {
	if id, ok := l.IDs[name]; ok {
		return id
	}
	id := graph.NodeIDFromName(name)
	if _, ok := l.Names[id]; !ok {
		l.Names[id] = name
	}
	return id
}

func splitEndpoint(s string) (node, port string, err error) {
	node, port, ok := strings.Cut(strings.TrimSpace(s), ".")
	node = NormalizeName(node)
	port = strings.TrimSpace(port)
	if !ok || node == "" || port == "" {
		return "", "", fmt.Errorf("endpoint %q must be written node.port", s)
	}
	return node, port, nil
}

func nodePorts(ns NodeSpec, reg *registry.Registry) ([]graph.PortMetadata, error) {
	name := NormalizeName(ns.Name)
	typ := strings.TrimSpace(ns.Type)
	if typ == "" {
		return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("node %q: type is required", name)}
	}

	var entry registry.Entry
	known := false
	if reg != nil {
		entry, known = reg.Lookup(typ)
	}
	if !known {
		return nil, &LoadError{Code: CodeUnknownType, Message: fmt.Sprintf("node %q: unknown type %q", name, typ)}
	}
	if len(ns.Ports) == 0 {
		return entry.DefaultPorts(ns.Properties), nil
	}

	ports := make([]graph.PortMetadata, 0, len(ns.Ports))
	for _, ps := range ns.Ports {
		p, err := parsePort(ps)
		if err != nil {
			return nil, &LoadError{Code: CodeInvalidGraph, Message: fmt.Sprintf("node %q", name), Err: err}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parsePort(ps PortSpec) (graph.PortMetadata, error) {
	p := graph.PortMetadata{
		Name:     strings.TrimSpace(ps.Name),
		Kind:     graph.Data,
		DataType: graph.TypeAny,
		Single:   ps.Single,
	}
	if p.Name == "" {
		return p, errors.New("port name is required")
	}
	switch strings.ToLower(ps.Direction) {
	case "input", "in":
		p.Direction = graph.Input
	case "output", "out":
		p.Direction = graph.Output
	default:
		return p, fmt.Errorf("port %q: direction %q must be input or output", p.Name, ps.Direction)
	}
	switch strings.ToLower(ps.Kind) {
	case "", "data":
	case "control":
		p.Kind = graph.Control
	default:
		return p, fmt.Errorf("port %q: kind %q must be data or control", p.Name, ps.Kind)
	}
	if t := strings.TrimSpace(ps.Type); t != "" {
		p.DataType = graph.DataTypeID(t)
	}
	return p, nil
}
