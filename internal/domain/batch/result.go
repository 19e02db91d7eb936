package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Outcome aggregates a batch: how many items were indexed and which failed.
type Outcome struct {
	Indexed int
	Failed  int
	Results []Result
}

// NewOutcome tallies per-item results.
func NewOutcome(results []Result) Outcome {
	o := Outcome{Results: results}
	for _, r := range results {
		if r.Status() == StatusOK {
			o.Indexed++
		} else {
			o.Failed++
		}
	}
	return o
}

// Failures returns only the failed items.
func (o Outcome) Failures() []Result {
	var out []Result
	for _, r := range o.Results {
		if r.Status() == StatusError {
			out = append(out, r)
		}
	}
	return out
}
