// Package database provides SQLite connectivity for the sighting history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.OpenAndMigrate(ctx, database.FromConfig(cfg.Database, migrations.FS))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// Migrations are additive. New columns must be NULLABLE or have DEFAULT
// values. Each .up.sql has a matching .down.sql for manual rollback with
// the sqlite3 shell; the bridge itself only migrates forward.
package database
