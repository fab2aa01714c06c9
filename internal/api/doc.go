// Package api handles incoming HTTP requests for the consult engine: agent
// submissions, record status and result queries, the activity log, the task
// debug surface and health checks. It translates HTTP concerns to
// ConsultService calls and maps service errors to status codes in one place.
package api
