// Package migrations embeds the schema migrations applied by the migrator.
package migrations

import "embed"

// FS holds the numbered up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
