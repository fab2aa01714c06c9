// Package bootstrap assembles the runtime pieces shared by cmd/server and
// cmd/worker from configuration: the LLM provider chain, the selected queue
// backend, the stores, and the task registry that dispatches queue jobs to
// the agent engines.
package bootstrap
