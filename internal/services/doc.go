// Package services defines shared utilities consumed by the queue, sync and
// remote integrations.
//
// Key responsibilities:
//   - Context helpers that stamp row IDs, mutation IDs, and sync pass
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (storage, remote conflict, remote failure, stats, validation)
//     with errors.Is.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability) stays uniform across the agent.
package services
