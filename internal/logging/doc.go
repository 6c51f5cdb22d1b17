// Package logging assembles the structured slog loggers used across coursedrop.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// request-id context helpers that stamp every line of an upload with the same
// correlation id. Prefer these constructors over hand-rolled slog setup so new
// components emit the same shape as the rest of the system.
package logging
