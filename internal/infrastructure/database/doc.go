// Package database provides SQLite connectivity for Gray Logic Discovery.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations registered from an fs.FS (usually embedded)
//   - In-memory databases for tests and ephemeral runs
//
// All tables are created STRICT and store timestamps as INTEGER unix
// seconds. The database file is created with 0600 permissions.
//
// Usage:
//
//	import _ "github.com/nerrad567/gray-logic-discovery/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be NULLABLE or have DEFAULT
// values, and each migration ships both .up.sql and .down.sql files.
package database
