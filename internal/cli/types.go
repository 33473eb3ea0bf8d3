package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/execgraph/internal/graph"
)

// TypeInfo describes one registered node type.
type TypeInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Inputs      []PortInfo `json:"inputs"`
	Outputs     []PortInfo `json:"outputs"`
}

// PortInfo describes one default port of a node type.
type PortInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Type   string `json:"type"`
	Single bool   `json:"single,omitempty"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the node types graphs can use",
		Long: `Types lists every registered node type with its default ports.

Example:
  execgraph types
  execgraph types --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			infos := listTypes(rootOpts)
			if f.isJSON() {
				return f.Success(infos)
			}
			for _, ti := range infos {
				fmt.Fprintf(f.Writer, "%s  (%s) -> (%s)\n", ti.Name, portList(ti.Inputs), portList(ti.Outputs))
				if ti.Description != "" {
					fmt.Fprintf(f.Writer, "    %s\n", ti.Description)
				}
			}
			return nil
		},
	}
}

func listTypes(opts *RootOptions) []TypeInfo {
	reg := opts.registry()
	infos := make([]TypeInfo, 0)
	for _, name := range reg.Names() {
		e, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		ti := TypeInfo{Name: e.Name, Description: e.Description, Inputs: []PortInfo{}, Outputs: []PortInfo{}}
		for _, p := range e.Ports {
			pi := PortInfo{Name: p.Name, Kind: p.Kind.String(), Type: p.DataType.String(), Single: p.Single}
			if p.Direction == graph.Input {
				ti.Inputs = append(ti.Inputs, pi)
			} else {
				ti.Outputs = append(ti.Outputs, pi)
			}
		}
		infos = append(infos, ti)
	}
	return infos
}

func portList(ports []PortInfo) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, p.Name+" "+p.Type)
	}
	return strings.Join(parts, ", ")
}
