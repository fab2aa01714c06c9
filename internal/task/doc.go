// Package task executes queued work against durable work records.
//
// An Engine is generic over one kind's input and output types. It is bound
// to a WorkItem that supplies the provider call, the fallback output and the
// derived metrics for that kind. For each delivery the engine moves the
// record through processing to completed or failed, appends the matching
// activity log entries in the same transaction as each status change, and
// returns errors the queue's retry policy understands.
//
// Records are never locked in memory. Every status write is conditional on
// the status the engine last read, so when two deliveries of the same work
// race, the loser observes store.ErrStaleTransition and stands down.
//
// A Registry type-erases engines behind Handler so a single queue consumer
// can dispatch jobs of every kind.
package task
