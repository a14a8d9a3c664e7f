package harness

// TraceEvent records one executed step and the replica sizes after it.
type TraceEvent struct {
	Step   int    `json:"step"`
	Side   string `json:"side"`
	Op     string `json:"op"`
	Args   string `json:"args,omitempty"`
	Error  string `json:"error,omitempty"`
	Server int    `json:"server"`
	Client int    `json:"client"`
}

// Replicas holds the rendered entries of both replicas.
type Replicas struct {
	Server []string `json:"server"`
	Client []string `json:"client"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expected error and the
	// final state matched the scenario's expectations.
	Pass bool `json:"pass"`

	// Trace has one event per step.
	Trace []TraceEvent `json:"trace"`

	// Log collects the lines written by advise and view observers.
	Log []string `json:"log"`

	// Replicas is the final state.
	Replicas Replicas `json:"replicas"`

	// Errors describes every failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
		Log:   []string{},
		Replicas: Replicas{
			Server: []string{},
			Client: []string{},
		},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
