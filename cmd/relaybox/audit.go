package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/relaybox/internal/audit"
	"github.com/nerrad567/relaybox/internal/relay"
)

func auditCommand(f *flags) *cli.Command {
	var (
		limit     int
		offset    int
		direction string
	)

	return &cli.Command{
		Name:        "audit",
		Usage:       "Print the stored relay log",
		UsageText:   "relaybox audit [--limit N] [--offset N] [--direction inbound|outbound|system]",
		Description: "Reads the audit database, newest entries first.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "entries to show (max 200)",
				Value:       50,
				Destination: &limit,
			},
			&cli.IntFlag{
				Name:        "offset",
				Usage:       "entries to skip",
				Destination: &offset,
			},
			&cli.StringFlag{
				Name:        "direction",
				Aliases:     []string{"d"},
				Usage:       "only show inbound, outbound or system lines",
				Destination: &direction,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			dir, err := parseDirection(direction)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if !cfg.Audit.Database.Enabled {
				return errors.New("audit database is disabled in configuration")
			}

			db, err := openAuditDB(ctx, cfg.Audit.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only command

			res, err := audit.NewSQLiteRepository(db.DB).List(ctx, audit.Filter{
				Direction: dir,
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				return fmt.Errorf("list audit entries: %w", err)
			}

			return printEntries(c, res)
		},
	}
}

func parseDirection(s string) (relay.Direction, error) {
	switch d := relay.Direction(s); d {
	case "", relay.DirectionInbound, relay.DirectionOutbound, relay.DirectionSystem:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want inbound, outbound or system)", s)
	}
}

func printEntries(c *cli.Command, res *audit.ListResult) error {
	out := c.Root().Writer
	if len(res.Entries) == 0 {
		_, err := fmt.Fprintln(out, "No entries found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tDIRECTION\tLINE")
	for _, e := range res.Entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Direction, e.Line)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%d of %d entries (offset %d)\n", len(res.Entries), res.Total, res.Offset)
	return err
}
