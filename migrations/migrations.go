// Package migrations embeds the numbered SQL schema files applied by
// "ed-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
