package harness

// TraceEvent is one recorded event in scenario form: names instead of ids
// and no timestamps.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Node   string `json:"node,omitempty"`
	Port   string `json:"port,omitempty"`
	Value  any    `json:"value,omitempty"`
	Type   string `json:"type,omitempty"`
	To     string `json:"to,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the expectation and every assertion held.
	Pass bool `json:"pass"`

	// Status is the observed run status (see the Status* constants).
	Status string `json:"status"`

	RunID      string            `json:"run_id,omitempty"`
	Executed   []string          `json:"executed"`
	Failures   map[string]string `json:"failures,omitempty"`
	Unexecuted []string          `json:"unexecuted,omitempty"`

	// Invalid holds validator errors when the graph was rejected.
	Invalid []string `json:"invalid,omitempty"`

	// Trace holds every event in emission order.
	Trace []TraceEvent `json:"trace"`

	// Outputs maps "node.port" to the last value written there.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Errors lists failed checks. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Executed: []string{},
		Trace:    []TraceEvent{},
		Failures: map[string]string{},
		Outputs:  map[string]any{},
		Errors:   []string{},
	}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
