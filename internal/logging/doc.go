// Package logging builds the slog loggers used across the client and
// defines the standardized structured field keys.
package logging
