// Package remote defines the contract with the system of record that owns
// confirmed barcode records and the aggregate scan counters.
//
// Store is implemented by the HTTP Client used by field agents, by the SQL
// backed sqlstore used by the reference server, and by in-memory fakes in
// tests. Replay conflicts (duplicate insert, missing record) are reported as
// ErrDuplicate and ErrNotFound, both classified as services.ErrRemoteConflict;
// every other failure is classified as services.ErrRemoteFailure.
package remote
