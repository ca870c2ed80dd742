// Package syncer replays the local mutation queue against the remote store.
//
// A pass walks every pending mutation in replay order, one request in flight
// at a time. Replays are idempotent: a duplicate insert or a missing record on
// update or delete counts as success, so a pass that died halfway can simply
// run again. The first real failure ends the pass and demotes every mutation
// the pass had claimed back to pending. Changes already acknowledged by the
// remote store stay there.
//
// Only one pass runs at a time per Manager; WithLock extends that guarantee
// across processes sharing the same state directory.
package syncer
