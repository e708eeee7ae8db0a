// Package database provides SQLite connectivity for the IR fan bridge.
//
// It opens the database with WAL journaling and a busy timeout, and applies
// the embedded schema migrations that back the fan state store and the
// state history log.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default.
package database
