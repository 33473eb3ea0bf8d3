package testutil

// FixedRunIDGenerator returns the same run id every time, so recorded
// output is byte-identical across test runs.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator returns a generator for id, or "test-run" if id
// is empty.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunIDGenerator{id: id}
}

func (g *FixedRunIDGenerator) Generate() string { return g.id }
