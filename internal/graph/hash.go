package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainGraph separates graph fingerprints from any other hash in the system.
// The version suffix allows the encoding to change later.
const DomainGraph = "execgraph/graph/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

type fingerprintPort struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	DataType  string `json:"data_type"`
	Single    bool   `json:"single"`
}

type fingerprintNode struct {
	ID          string            `json:"id"`
	RuntimeType string            `json:"runtime_type"`
	Ports       []fingerprintPort `json:"ports"`
	Properties  map[string]any    `json:"properties,omitempty"`
}

type fingerprintLink struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Fingerprint returns a content-addressed identity for the graph.
//
// Two graphs with the same nodes, ports, properties and links in the same
// declaration order produce the same fingerprint. Recorded runs carry it so
// traces can be matched to the graph that produced them.
func (g *GraphModel) Fingerprint() (string, error) {
	doc := struct {
		Nodes []fingerprintNode `json:"nodes"`
		Links []fingerprintLink `json:"links"`
	}{
		Nodes: make([]fingerprintNode, 0, len(g.nodes)),
		Links: make([]fingerprintLink, 0, len(g.links)),
	}
	for _, n := range g.nodes {
		fn := fingerprintNode{
			ID:          n.ID.String(),
			RuntimeType: n.RuntimeType,
			Ports:       make([]fingerprintPort, 0, len(n.Ports)),
			Properties:  n.Properties,
		}
		for _, p := range n.Ports {
			fn.Ports = append(fn.Ports, fingerprintPort{
				Name:      p.Name,
				Direction: p.Direction.String(),
				Kind:      p.Kind.String(),
				DataType:  string(p.DataType),
				Single:    p.Single,
			})
		}
		doc.Nodes = append(doc.Nodes, fn)
	}
	for _, l := range g.links {
		doc.Links = append(doc.Links, fingerprintLink{
			From: l.FromNode.String() + "." + l.FromPort,
			To:   l.ToNode.String() + "." + l.ToPort,
		})
	}

	// encoding/json sorts map keys, so property order does not leak into the hash.
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint graph: %w", err)
	}
	return hashWithDomain(DomainGraph, data), nil
}
