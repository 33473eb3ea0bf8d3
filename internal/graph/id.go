package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeID identifies a node within a graph.
// The zero value means "no node" and is used for an unset start node.
type NodeID uuid.UUID

// nameSpace seeds name-derived ids so the same name always maps to the same id.
var nameSpace = uuid.MustParse("5b0d6a8e-3f0e-4c39-9c7b-8f2f7f0c2a11")

// NewNodeID returns a random (version 4) node id.
func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// NodeIDFromName derives a stable id from a human-readable name (UUID v5).
// Graph files may name nodes instead of spelling out UUIDs.
func NodeIDFromName(name string) NodeID {
	return NodeID(uuid.NewSHA1(nameSpace, []byte(name)))
}

// ParseNodeID parses the canonical textual form of a node id.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: %w", s, err)
	}
	return NodeID(u), nil
}

// IsZero reports whether the id is unset.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// String returns the hyphenated UUID form.
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight hex digits, for log lines.
func (id NodeID) Short() string {
	return id.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
