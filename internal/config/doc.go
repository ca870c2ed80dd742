// Package config loads, normalizes, and validates fieldscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FIELDSCAN_REMOTE_URL and FIELDSCAN_USER_ID. The Config type centralizes every
// knob the agent and CLI need so the queue database, inbox directory, and remote
// endpoint are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
