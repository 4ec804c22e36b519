package docsync

import "errors"

// Outcome tells the queue manager what to do with a processed item.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRequeue
	OutcomeSuspend
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRequeue:
		return "requeue"
	case OutcomeSuspend:
		return "suspend"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned by every worker.
type Result struct {
	Outcome Outcome
	Err     error

	// Processed counts files or records handled, Skipped counts per-file
	// failures that did not fail the item.
	Processed int
	Skipped   int
}

// ResultFromError maps an error to the outcome it implies.
func ResultFromError(err error) Result {
	switch {
	case err == nil:
		return Result{Outcome: OutcomeSuccess}
	case errors.Is(err, ErrStorageUnavailable):
		return Result{Outcome: OutcomeSuspend, Err: err}
	case errors.Is(err, ErrRequeue):
		return Result{Outcome: OutcomeRequeue, Err: err}
	default:
		return Result{Outcome: OutcomeFailed, Err: err}
	}
}
