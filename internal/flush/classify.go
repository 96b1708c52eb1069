package flush

import "net/http"

// Outcome is the classification of a single replay.
type Outcome int

const (
	// OutcomeSuccess means the server accepted the mutation.
	OutcomeSuccess Outcome = iota + 1
	// OutcomeRejected means the server refused it and retrying will not help.
	OutcomeRejected
	// OutcomeTransient means the replay may succeed later.
	OutcomeTransient
)

// String returns the outcome name used in logs and traces.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP status to an Outcome.
//
// 408 and 429 are client-class statuses that do improve with a retry, so
// they stay queued.
func Classify(status int) Outcome {
	switch {
	case status >= 500:
		return OutcomeTransient
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return OutcomeTransient
	case status >= 400:
		return OutcomeRejected
	default:
		return OutcomeSuccess
	}
}
