package db

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var fs embed.FS

var gooseDialects = map[string]string{
	DriverSqlite:   "sqlite3",
	DriverLibsql:   "turso",
	DriverPostgres: "postgres",
}

func Migrate(direction string, db *sqlx.DB) error {
	dialect, ok := gooseDialects[db.DriverName()]
	if !ok {
		return fmt.Errorf("no migration dialect for driver %q", db.DriverName())
	}
	goose.SetBaseFS(fs)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect %v: %w", dialect, err)
	}

	migrateMethod := goose.Up
	if direction == "down" {
		migrateMethod = goose.Down
	}
	if err := migrateMethod(db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate %v: %w", direction, err)
	}
	return nil
}
