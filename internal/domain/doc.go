// Package domain contains the work lifecycle entities of the consult engine:
// work records, their status machine, the activity log, and the typed inputs
// each agent accepts. It has no knowledge of storage, queues, or transport.
package domain
