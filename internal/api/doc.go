// Package api defines wire-format types and converters for the agent's HTTP
// API. It translates queue mutations and sync state into transport-friendly
// DTOs that the CLI and other local consumers can render without coupling to
// internal types.
//
// # Key Types
//
// QueueItem: transport representation of a queued mutation.
//
// AgentStatus: connectivity, pending counts and sync state of a running agent.
//
// SyncResponse: outcome of a sync pass requested over the API.
//
// MergedRow: a row's display records with pending entries marked.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Kind, queue.Status,
// syncer.State) are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
