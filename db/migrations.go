package db

import "embed"

// Migrations holds the goose SQL files applied by the migrate command and on
// server start.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
