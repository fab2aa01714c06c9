// Package service contains the application use cases of the consult engine.
// ConsultService accepts submissions, persists them as work records in the
// created state, hands them to the task queue, and answers status, result
// and activity queries scoped to the owning user.
//
// Errors follow the layering of the rest of the module: store and domain
// errors are translated into the service sentinels defined in errors.go,
// unexpected failures are wrapped in *ConsultServiceError, and the API layer
// maps the result to an HTTP status exactly once.
package service
