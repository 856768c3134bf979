// Package logging builds slog loggers with aria's console and JSON handlers
// and provides attribute helpers shared by all components.
package logging
