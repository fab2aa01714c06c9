// Package logger configures the process-wide structured JSON logger and
// carries request-scoped loggers and trace ids through context.Context.
package logger
