// Package sqlite implements the store interfaces on SQLite using the pure-Go
// modernc.org/sqlite driver. It backs single-node deployments and the test
// suites of the packages above the store layer.
package sqlite
