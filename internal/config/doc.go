// Package config loads and validates process configuration from defaults,
// an optional config.yaml and CONSULT_-prefixed environment variables.
package config
