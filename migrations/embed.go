// Package migrations embeds the SQL schema migrations so the migrator
// binary ships them without a filesystem dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
