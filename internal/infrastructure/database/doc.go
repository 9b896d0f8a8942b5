// Package database provides the SQLite persistence layer for HomePulse Core.
//
// It wraps database/sql with:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - A single-writer connection pool suited to SQLite
//   - Embedded schema migrations applied at startup
//   - Health checks for the runtime
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
