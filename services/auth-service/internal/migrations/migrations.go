// Package migrations embeds the goose SQL migrations of the auth service.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
