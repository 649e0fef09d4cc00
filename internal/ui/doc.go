// Package ui renders gh invocation events as concise console messages.
//
// It is attached to the shell executor when the console log format is active so
// that users see what ghbot runs on their behalf while structured telemetry
// continues to flow through the diagnostic logger.
package ui
