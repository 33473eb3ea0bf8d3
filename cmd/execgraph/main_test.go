package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/execgraph/internal/cli"
)

func graphPath(name string) string {
	return filepath.Join("..", "..", "internal", "cli", "testdata", "graphs", name)
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"valid graph", []string{"validate", graphPath("sum.yaml")}, cli.ExitSuccess},
		{"invalid graph", []string{"validate", graphPath("mismatch.yaml")}, cli.ExitFailure},
		{"missing file", []string{"validate", graphPath("absent.yaml")}, cli.ExitCommandError},
		{"bad format flag", []string{"--format", "xml", "types"}, cli.ExitCommandError},
		{"failing run", []string{"run", graphPath("failing.yaml")}, cli.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(&stdout, &stderr, tt.args))
		})
	}
}

func TestRun_UnknownCommandPrintsError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(&stdout, &stderr, []string{"frobnicate"})

	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, stderr.String(), "unknown command")
}
