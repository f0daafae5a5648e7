package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/database"
)

func migrateCommand(f *flags) *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Show or roll back audit database migrations",
		UsageText:   "relaybox migrate status | relaybox migrate down",
		Description: "serve applies pending migrations on startup; these commands inspect and undo them.",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "List applied and pending migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					db, err := openDBForMigrate(ctx, f)
					if err != nil {
						return err
					}
					defer db.Close() //nolint:errcheck // read-only command

					return printMigrationStatus(ctx, c.Root().Writer, db)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the most recent migration",
				Action: func(ctx context.Context, c *cli.Command) error {
					db, err := openDBForMigrate(ctx, f)
					if err != nil {
						return err
					}
					defer db.Close() //nolint:errcheck // nothing left to flush

					if err := db.MigrateDown(ctx); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					return printMigrationStatus(ctx, c.Root().Writer, db)
				},
			},
		},
	}
}

// openDBForMigrate opens the audit database without applying migrations.
func openDBForMigrate(ctx context.Context, f *flags) (*database.DB, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	if !cfg.Audit.Database.Enabled {
		return nil, errors.New("audit database is disabled in configuration")
	}
	return openDB(ctx, cfg.Audit.Database)
}

func openDB(ctx context.Context, cfg config.AuditDatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func printMigrationStatus(ctx context.Context, out io.Writer, db *database.DB) error {
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	for _, r := range applied {
		_, _ = fmt.Fprintf(w, "%s\t\tapplied %s\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\tpending\n", m.Version, m.Name)
	}
	return w.Flush()
}
