// Package store defines the persistence boundary of the consult engine:
// the work record store, the append-only activity log, shared sentinel
// errors, and the transaction helper used to pair a status update with
// its log entry.
package store
