// Package preflight provides readiness checks for the filesystem paths and the
// remote store that fieldscan depends on.
//
// The agent runs RunAll on start and logs failed checks; the CLI "fieldscan
// status" command renders the same results.
package preflight
