// Package postgres provides PostgreSQL implementations of the file and task
// stores, the transactional sessions tasks run in, and the embedded schema
// migrations. Queries go through database/sql with the pgx driver.
package postgres
