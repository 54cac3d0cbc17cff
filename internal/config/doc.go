// Package config loads, normalizes, and validates HandReceipt configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HANDRECEIPT_REMOTE_URL. The Config type centralizes every knob the agent and
// CLI need so the queue location, retry policy, and submission endpoint are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
