package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/reefsync/internal/queue"
)

// AssertionContext gives assertions access to the final queue.
type AssertionContext struct {
	Ctx   context.Context
	Store queue.Store
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
			if ev.Method != "" {
				fmt.Fprintf(&buf, " %s %s", ev.Method, ev.URL)
			}
			if ev.Status != 0 {
				fmt.Fprintf(&buf, " -> %d", ev.Status)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertPendingCount:
		return assertPendingCount(result, a, actx)
	case AssertQueueOrder:
		return assertQueueOrder(result, a, actx)
	case AssertReplayOrder:
		return assertReplayOrder(result, a)
	case AssertReplayCount:
		return assertReplayCount(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertPendingCount(result *Result, a Assertion, actx *AssertionContext) error {
	n, err := actx.Store.Count(actx.Ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertPendingCount,
			Expected: fmt.Sprintf("%d pending", a.Count),
			Actual:   fmt.Sprintf("%d pending", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertQueueOrder compares the remaining queue in replay order.
func assertQueueOrder(result *Result, a Assertion, actx *AssertionContext) error {
	entries, err := actx.Store.ListAll(actx.Ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	queue.Sort(entries)

	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.Method + " " + e.URL
	}
	if !slices.Equal(got, a.Requests) {
		return &AssertionError{
			Type:     AssertQueueOrder,
			Expected: fmt.Sprintf("%v", a.Requests),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertReplayOrder requires the exact sequence of upstream calls.
func assertReplayOrder(result *Result, a Assertion) error {
	got := result.Replays()
	if !slices.Equal(got, a.Requests) {
		return &AssertionError{
			Type:     AssertReplayOrder,
			Expected: fmt.Sprintf("%v", a.Requests),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertReplayCount(result *Result, a Assertion) error {
	n := 0
	for _, r := range result.Replays() {
		if r == a.Request {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertReplayCount,
			Expected: fmt.Sprintf("%s replayed %d time(s)", a.Request, a.Count),
			Actual:   fmt.Sprintf("replayed %d time(s)", n),
			Trace:    result.Trace,
		}
	}
	return nil
}
