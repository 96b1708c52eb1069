package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrNetwork is returned by ScriptedDoer for scripted network failures.
var ErrNetwork = errors.New("network unreachable")

// Call records one request seen by ScriptedDoer.
type Call struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Status and Err are the scripted outcome.
	Status int
	Err    error
}

// Reply scripts one response. A zero Status with Err nil means 200.
type Reply struct {
	Status int
	Err    error
}

// ScriptedDoer is an HTTP doer that answers from a script keyed by
// "METHOD URL", falling back to Default. It records every call in order.
//
// Gate, when set, is received from before answering, letting tests hold a
// request in flight.
type ScriptedDoer struct {
	Default Reply
	Gate    chan struct{}
	// Started, when set, is signalled as each request begins.
	Started chan struct{}

	mu     sync.Mutex
	script map[string][]Reply
	calls  []Call
}

// NewScriptedDoer creates a doer answering 200 unless scripted.
func NewScriptedDoer() *ScriptedDoer {
	return &ScriptedDoer{
		Default: Reply{Status: http.StatusOK},
		script:  make(map[string][]Reply),
	}
}

// On queues replies for method+url. Replies are consumed in order; the last
// one repeats.
func (d *ScriptedDoer) On(method, url string, replies ...Reply) *ScriptedDoer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script[method+" "+url] = append(d.script[method+" "+url], replies...)
	return d
}

// Do implements the flush engine's Doer.
func (d *ScriptedDoer) Do(req *http.Request) (*http.Response, error) {
	call := Call{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: make(map[string]string, len(req.Header)),
	}
	for name := range req.Header {
		call.Headers[name] = req.Header.Get(name)
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		call.Body = body
	}

	d.mu.Lock()
	reply := d.next(req.Method + " " + call.URL)
	if reply.Err == nil && reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	call.Status, call.Err = reply.Status, reply.Err
	d.calls = append(d.calls, call)
	d.mu.Unlock()

	if d.Started != nil {
		d.Started <- struct{}{}
	}
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	status := reply.Status
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}, nil
}

func (d *ScriptedDoer) next(key string) Reply {
	replies := d.script[key]
	if len(replies) == 0 {
		return d.Default
	}
	r := replies[0]
	if len(replies) > 1 {
		d.script[key] = replies[1:]
	}
	return r
}

// Calls returns the recorded calls in order.
func (d *ScriptedDoer) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call{}, d.calls...)
}

// CallCount returns the number of recorded calls.
func (d *ScriptedDoer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
