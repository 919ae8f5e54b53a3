// Package migrations embeds the goose migrations for the postgres kv adapter.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
