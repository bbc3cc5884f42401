// Package database provides SQLite connectivity for Shadow Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// The database holds the thing registry; shadow documents themselves live
// on the transport side and are never persisted here.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files follow YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are additive-only: new columns are
// NULLABLE or carry DEFAULT values, and nothing is dropped or renamed.
package database
