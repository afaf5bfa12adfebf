// Package kinoauth carries assets compiled into the service binaries.
package kinoauth

import "embed"

// SchemaFS holds the SQL migrations and seeds applied by the migrate
// runner.
//
//go:embed migrations seeds
var SchemaFS embed.FS
