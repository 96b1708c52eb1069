package harness

import "github.com/roach88/reefsync/internal/flush"

// Trace event types.
const (
	EventEnqueue = "enqueue"
	EventReplay  = "replay"
	EventFlush   = "flush"
	EventOnline  = "online"
	EventOffline = "offline"
	EventStore   = "store"
)

// TraceEvent is one observable effect of a scenario step.
type TraceEvent struct {
	Seq    int64         `json:"seq"`
	Type   string        `json:"type"`
	ID     string        `json:"id,omitempty"`
	Method string        `json:"method,omitempty"`
	URL    string        `json:"url,omitempty"`
	Status int           `json:"status,omitempty"`
	Error  string        `json:"error,omitempty"`
	Result *flush.Result `json:"result,omitempty"`
	State  string        `json:"state,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Replays returns the "METHOD URL" of every replay event in order.
func (r *Result) Replays() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Type == EventReplay {
			out = append(out, ev.Method+" "+ev.URL)
		}
	}
	return out
}
