// Package migrations holds the versioned SQL schema applied by `cli migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
