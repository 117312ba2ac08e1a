// Package database provides SQLite connectivity for the Gray Logic node.
//
// The node keeps a single small database file holding the persisted
// settings image (see internal/nvram). The package manages:
//   - Connection setup with synchronous=FULL so commits survive power loss
//   - Forward-only schema migrations embedded in the binary
//   - Health checks and lifecycle
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "/var/lib/graylogic-node/nvram.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
