// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. JSON payloads live in JSONB
// columns and the schema ships as embedded goose migrations.
package postgres
