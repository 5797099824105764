package migrate

import "embed"

// Files holds the SQL migrations compiled into the binary.
//
//go:embed migrations/*.sql
var Files embed.FS

const embeddedDir = "migrations"
