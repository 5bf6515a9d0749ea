// Package migrations embeds the store's schema migrations for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
