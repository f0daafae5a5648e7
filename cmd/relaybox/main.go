// relaybox - device relay mailbox
//
// relaybox runs a small HTTP relay through which two populations of devices
// (A and B) leave their latest message for each other, plus an operator
// console for starting and stopping the relay and watching its log.
//
// Commands:
//
//	relaybox serve    run the relay and console until interrupted
//	relaybox audit    print the stored relay log
//	relaybox migrate  show or roll back audit database migrations
//	relaybox version  print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// flags holds values shared across commands.
type flags struct {
	ConfigPath string
	Host       string
	Port       int
}

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Split from main for testability.
func newApp() *cli.Command {
	f := &flags{}

	return &cli.Command{
		Name:      "relaybox",
		Usage:     "Relay mailbox for two device populations",
		UsageText: "relaybox [global options] command [command options]",
		Version:   build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (defaults are used when empty)",
				Sources:     cli.EnvVars("RELAYBOX_CONFIG"),
				Destination: &f.ConfigPath,
			},
		},
		Commands: []*cli.Command{
			serveCommand(f),
			auditCommand(f),
			migrateCommand(f),
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(_ context.Context, c *cli.Command) error {
					_, err := fmt.Fprintf(c.Root().Writer, "relaybox %s\n", build())
					return err
				},
			},
		},
	}
}
