// Package migrations embeds the audit trail's schema for golang-migrate.
package migrations

import "embed"

// FS holds the Postgres migration source tree, read by golang-migrate's
// iofs source driver.
//
//go:embed *.sql
var FS embed.FS
