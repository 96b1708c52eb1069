// Package harness runs offline-queue scenarios end to end.
//
// A scenario is a YAML file describing a sequence of steps (enqueue, flush,
// connectivity transitions, storage outages) against a scripted upstream.
// Each run uses a fresh in-memory SQLite store, sequential request ids and
// a deterministic clock, so the recorded trace is stable enough to compare
// against golden files.
//
// Example scenario:
//
//	name: reconnect-drains-queue
//	description: Requests queued offline replay in order once online
//	online: false
//	flow:
//	  - action: enqueue
//	    request: {method: POST, url: /api/tanks/1/parameters, body: '{"ph":8.2}'}
//	  - action: online
//	assertions:
//	  - type: pending_count
//	    count: 0
//
// Golden traces live in testdata/golden/<name>.golden. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
