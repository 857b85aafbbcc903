// Package migrations embeds the schema migration files so the runner works
// regardless of the process working directory.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS
