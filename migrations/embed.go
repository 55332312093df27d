// Package migrations embeds the SQL schema migrations applied by
// `labtrend migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
