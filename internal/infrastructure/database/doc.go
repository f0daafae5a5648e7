// Package database opens the SQLite file behind the relaybox audit trail and
// keeps its schema current.
//
// `relaybox serve` writes to the database while `relaybox audit` reads it
// from a second process, so Open enables WAL and a busy timeout when asked.
// The file is created 0600 inside a 0750 directory.
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/relaybox.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
//
// Migrate reads MigrationsFS, which the migrations package fills with its
// embedded files. Each migration is a YYYYMMDD_HHMMSS_name.up.sql file with
// an optional .down.sql partner; applied versions are tracked in
// schema_migrations.
package database
