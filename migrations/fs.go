// Package migrations embeds the goose SQL migrations applied by registrar-admin.
package migrations

import "embed"

// FS holds every *.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
