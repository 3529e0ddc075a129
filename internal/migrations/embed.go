// Package migrations embeds the goose SQL migrations applied by the
// migrate subcommand and the repository integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
