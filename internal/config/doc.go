// Package config loads, normalizes, and validates the TOML configuration for
// the FlowScribe backup daemon. All paths are expanded to absolute form and
// user-editable numeric limits are clamped to their documented bounds before
// any other package sees them.
package config
