// Package logging builds the slog loggers used across the backup engine and
// defines the standardized structured field keys shared by all components.
package logging
