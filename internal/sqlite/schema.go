package sqlite

import (
	"database/sql"
	"fmt"
)

// schemaVersion is stored in PRAGMA user_version. A cache file written with a
// different version is dropped and rebuilt; its content is derived data.
const schemaVersion = 2

// Schema DDL for all tables.
const (
	createAssets = `CREATE TABLE IF NOT EXISTS assets (
    guid TEXT PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    scanned_at INTEGER NOT NULL DEFAULT 0,
    file_size INTEGER NOT NULL,
    modified_at INTEGER NOT NULL
);`

	createDependencies = `CREATE TABLE IF NOT EXISTS dependencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target_guid TEXT NOT NULL,
    dependency_guid TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    file_size INTEGER NOT NULL,
    modified_at INTEGER NOT NULL
);`

	createMeta = `CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxDependenciesTarget     = `CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_guid);`
	idxDependenciesDependency = `CREATE INDEX IF NOT EXISTS idx_dependencies_dependency ON dependencies(dependency_guid);`
	idxDependenciesUnique     = `CREATE UNIQUE INDEX IF NOT EXISTS idx_dependencies_unique ON dependencies(target_guid, dependency_guid);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createAssets,
	createDependencies,
	createMeta,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxDependenciesTarget,
	idxDependenciesDependency,
	idxDependenciesUnique,
}

// dropDDL removes every table when an older schema is found.
var dropDDL = []string{
	`DROP TABLE IF EXISTS assets;`,
	`DROP TABLE IF EXISTS dependencies;`,
	`DROP TABLE IF EXISTS meta;`,
}

// initSchema creates the tables, rebuilding them when the stored version
// does not match schemaVersion.
func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if version != 0 {
		for _, stmt := range dropDDL {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("dropping old schema: %w", err)
			}
		}
	}
	for _, stmt := range schemaDDL {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("updating schema version: %w", err)
	}
	return tx.Commit()
}
