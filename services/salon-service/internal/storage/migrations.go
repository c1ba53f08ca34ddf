package storage

import "embed"

// Migrations holds the schema, applied at startup with db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
