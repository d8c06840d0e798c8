package harness

import "github.com/roach88/strata/internal/ir"

// TraceEvent records what one step did.
//
// Records are referenced by alias where the scenario bound one, by permanent
// identity otherwise, and as "temporary" for unsaved records without an
// alias. Temporary identities are random, so they never reach a trace.
type TraceEvent struct {
	Step    int              `json:"step"`
	Op      string           `json:"op"`
	Context string           `json:"context,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Ref     string           `json:"ref,omitempty"`
	Count   *int             `json:"count,omitempty"`
	Records []RecordSnapshot `json:"records,omitempty"`
	Refs    []string         `json:"refs,omitempty"`
	Error   string           `json:"error,omitempty"`
	Fatal   bool             `json:"fatal,omitempty"`
}

// RecordSnapshot is a record as a fetch returned it.
type RecordSnapshot struct {
	Ref    string    `json:"ref"`
	Fields ir.Object `json:"fields"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step met its expectations.
	Pass bool `json:"pass"`

	// Trace has one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step's event to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
