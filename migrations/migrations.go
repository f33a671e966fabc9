// Package migrations embeds the PostgreSQL schema applied by internal/postgres.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
