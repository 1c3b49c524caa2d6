// Package logging builds the process-wide slog logger and the attribute
// conventions shared across components. Console output uses a compact
// human-oriented handler; JSON output is available for machine ingestion.
package logging
