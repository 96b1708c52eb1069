package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes one end-to-end run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Online is the connectivity at start-up.
	Online bool `yaml:"online"`

	// Responses scripts the upstream. Unscripted requests get 200.
	Responses []Response `yaml:"responses,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// Response scripts replies for one method and URL. The last reply repeats.
type Response struct {
	Method  string      `yaml:"method"`
	URL     string      `yaml:"url"`
	Replies []ReplySpec `yaml:"replies"`
}

// ReplySpec is a status code or a network error ("network").
type ReplySpec struct {
	Status int    `yaml:"status,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Step actions.
const (
	ActionEnqueue      = "enqueue"
	ActionFlush        = "flush"
	ActionOnline       = "online"
	ActionOffline      = "offline"
	ActionStoreDown    = "store_down"
	ActionStoreUp      = "store_up"
	ActionHoldClock    = "hold_clock"
	ActionReleaseClock = "release_clock"
)

// Step is one action in the flow.
type Step struct {
	Action  string       `yaml:"action"`
	Request *RequestSpec `yaml:"request,omitempty"`
	Expect  *Expect      `yaml:"expect,omitempty"`
}

// RequestSpec is the request handed to enqueue. A missing body stays absent.
type RequestSpec struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    *string           `yaml:"body,omitempty"`
}

// Expect checks a step's outcome. Error is a queue error code.
type Expect struct {
	Error  string        `yaml:"error,omitempty"`
	Result *ExpectResult `yaml:"result,omitempty"`
}

// ExpectResult is the expected flush summary.
type ExpectResult struct {
	Succeeded int `yaml:"succeeded"`
	Failed    int `yaml:"failed"`
	Dropped   int `yaml:"dropped"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of pending_count, queue_order, replay_order, replay_count.
	Type string `yaml:"type"`

	// Count is used by pending_count and replay_count.
	Count int `yaml:"count,omitempty"`

	// Request is a "METHOD URL" pair (replay_count).
	Request string `yaml:"request,omitempty"`

	// Requests lists "METHOD URL" pairs in order (queue_order, replay_order).
	Requests []string `yaml:"requests,omitempty"`
}

// Assertion types.
const (
	AssertPendingCount = "pending_count"
	AssertQueueOrder   = "queue_order"
	AssertReplayOrder  = "replay_order"
	AssertReplayCount  = "replay_count"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Responses {
		if r.Method == "" || r.URL == "" {
			return fmt.Errorf("responses[%d]: method and url are required", i)
		}
		if len(r.Replies) == 0 {
			return fmt.Errorf("responses[%d]: replies list is required", i)
		}
		for j, reply := range r.Replies {
			if reply.Error != "" && reply.Error != "network" {
				return fmt.Errorf("responses[%d].replies[%d]: unknown error %q", i, j, reply.Error)
			}
			if reply.Error != "" && reply.Status != 0 {
				return fmt.Errorf("responses[%d].replies[%d]: status and error are exclusive", i, j)
			}
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch step.Action {
	case ActionEnqueue:
		if step.Request == nil {
			return fmt.Errorf("flow[%d]: request is required for enqueue", index)
		}
		if step.Expect != nil && step.Expect.Result != nil {
			return fmt.Errorf("flow[%d]: enqueue cannot expect a flush result", index)
		}
	case ActionFlush:
		if step.Request != nil {
			return fmt.Errorf("flow[%d]: flush takes no request", index)
		}
	case ActionOnline, ActionOffline, ActionStoreDown, ActionStoreUp, ActionHoldClock, ActionReleaseClock:
		if step.Request != nil || step.Expect != nil {
			return fmt.Errorf("flow[%d]: %s takes no request or expect", index, step.Action)
		}
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertPendingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertQueueOrder, AssertReplayOrder:
		if a.Requests == nil {
			return fmt.Errorf("assertions[%d]: requests list is required for %s", index, a.Type)
		}
	case AssertReplayCount:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for replay_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
