// Package monitor bridges connectivity signals to the flush engine and
// exposes the sync state the UI renders.
//
// State machine:
//
//	Offline --online--> Syncing --flush done--> Idle (online)
//	Online  --offline-> Offline (an in-flight flush runs to completion)
//
// A cold start never flushes, even when the source reports online: the
// pending count is read for display only. A second online signal while a
// flush is running does not start another one; it queues one follow-up
// flush that runs once the current one finishes, if still online.
//
// Connectivity comes from a Source so tests can drive transitions
// deterministically. ProbeSource implements Source by polling a health URL.
package monitor
