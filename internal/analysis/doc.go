// Package analysis turns raw model text into typed results.
//
// Model output is free text that usually, but not always, contains a JSON
// object. Parse extracts and decodes that object into the caller's type and
// reports the outcome as a Result: either Structured, when decoding
// succeeded, or Fallback, when it did not and a caller-supplied fallback
// value was used instead. A fallback is never an error; it is surfaced as a
// ParseFallbackWarning so callers can log it and flag it in metadata.
package analysis
