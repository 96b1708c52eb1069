// Package flush replays the offline write queue against the network.
//
// A flush snapshots every persisted entry, orders it with queue.Sort and
// replays the entries one at a time. Replay is strictly sequential: a later
// update to a resource must never overtake the create that precedes it.
//
// Each outcome is classified:
//
//   - Success (status below 500, not a rejection): entry removed, Succeeded++
//   - PermanentRejection (4xx other than 408/429): entry removed,
//     Succeeded++ and Dropped++, logged at WARN and passed to OnRejected
//   - TransientNetworkFailure (transport error, timeout, 5xx, 408, 429):
//     entry kept, Failed++, replay continues with the next entry
//
// An entry is removed strictly after its call is confirmed, so a crash
// mid-flush leaves every unconfirmed entry queued.
//
// Flush is single-flight: concurrent callers share the in-flight result.
// When the store implements queue.Leaser the engine also holds a lease for
// the duration of the replay so two processes sharing one database do not
// replay the same entries.
package flush
