// Package migrations embeds the goose SQL migrations for the schema.
package migrations

import "embed"

// FS holds the migration files. Goose reads them from the root directory.
//
//go:embed *.sql
var FS embed.FS
