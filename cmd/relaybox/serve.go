package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	_ "github.com/nerrad567/relaybox/migrations"

	"github.com/nerrad567/relaybox/internal/audit"
	"github.com/nerrad567/relaybox/internal/console"
	"github.com/nerrad567/relaybox/internal/control"
	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/database"
	"github.com/nerrad567/relaybox/internal/infrastructure/influxdb"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/infrastructure/mqtt"
	"github.com/nerrad567/relaybox/internal/netinfo"
	"github.com/nerrad567/relaybox/internal/relay"
)

func serveCommand(f *flags) *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Run the relay and operator console",
		UsageText:   "relaybox serve [--host ADDR] [--port N]",
		Description: "Starts the console and, unless relay.auto_start is false, the relay. Runs until interrupted.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "host",
				Usage:       "relay bind address (overrides relay.host)",
				Sources:     cli.EnvVars("RELAYBOX_HOST"),
				Destination: &f.Host,
			},
			&cli.IntFlag{
				Name:        "port",
				Usage:       "relay port (overrides relay.port)",
				Sources:     cli.EnvVars("RELAYBOX_PORT"),
				Destination: &f.Port,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f)
		},
	}
}

// loadConfig reads the config and applies command line overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if f.Host != "" {
		cfg.Relay.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Relay.Port = f.Port
	}
	if f.Host != "" || f.Port != 0 {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating overrides: %w", err)
		}
	}
	return cfg, nil
}

// run wires every component and blocks until ctx is cancelled.
//
// Returns nil on clean shutdown.
func run(ctx context.Context, f *flags) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting relaybox",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", f.ConfigPath,
	)

	hub := console.NewHub(cfg.WebSocket, cfg.Console.LogHistory, log.With("component", "log-hub"))
	sinks := relay.MultiSink{hub, logging.NewSink(log)}

	if cfg.Audit.File.Enabled {
		fileSink, fileErr := audit.NewFileSink(cfg.Audit.File.Dir)
		if fileErr != nil {
			return fmt.Errorf("opening audit log directory: %w", fileErr)
		}
		defer func() {
			if writeErr := fileSink.Err(); writeErr != nil {
				log.Warn("audit log file had write errors", "dir", cfg.Audit.File.Dir, "last_error", writeErr)
			}
			if closeErr := fileSink.Close(); closeErr != nil {
				log.Error("error closing audit log file", "error", closeErr)
			}
		}()
		sinks = append(sinks, fileSink)
		log.Info("audit log files enabled", "dir", cfg.Audit.File.Dir)
	}

	if cfg.Audit.Database.Enabled {
		db, dbErr := openAuditDB(ctx, cfg.Audit.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		sinks = append(sinks, audit.NewSink(audit.NewSQLiteRepository(db.DB), log))
		log.Info("audit database ready", "path", cfg.Audit.Database.Path)
	}

	var observers []relay.Observer

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))

		mirror := mqtt.NewMirror(mqttClient, cfg.MQTT, log)
		go mirror.Run(ctx)
		observers = append(observers, mirror)
		log.Info("MQTT mirror enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT mirror disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, influxdb.NewRecorder(influxClient))
		log.Info("InfluxDB metrics enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	svc := relay.New(relay.Options{
		Sink:      sinks,
		Observers: observers,
		Logger:    log,
		Timeouts:  cfg.Relay.Timeouts,
	})

	deps := control.Deps{
		Relay:  svc,
		Config: cfg.Relay,
		Sink:   sinks,
		Logger: log.With("component", "control"),
	}
	if cfg.Discovery.PublicIP.Enabled {
		deps.Lookup = netinfo.NewLookup(cfg.Discovery.PublicIP, log)
	}
	if cfg.Discovery.MDNS.Enabled {
		deps.Advertiser = netinfo.NewAdvertiser(cfg.Discovery.MDNS)
	}
	ctrl, err := control.New(deps)
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	go ctrl.RefreshPublicIP(ctx)

	if cfg.Console.Enabled {
		srv, srvErr := console.New(console.Deps{
			Config:     cfg.Console,
			Controller: ctrl,
			Hub:        hub,
			Logger:     log,
			Version:    version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating console: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting console: %w", startErr)
		}
		defer func() {
			log.Info("stopping console")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping console", "error", closeErr)
			}
		}()
	}

	if cfg.Relay.AutoStart {
		if startErr := ctrl.Start(ctx); startErr != nil {
			// With a console the operator can fix the address and retry.
			if !cfg.Console.Enabled {
				return fmt.Errorf("starting relay: %w", startErr)
			}
			log.Error("relay did not start", "error", startErr)
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if ctrl.Status().Running {
		ctrl.Stop()
	}

	log.Info("relaybox stopped")
	return nil
}

// openAuditDB opens the audit database and applies pending migrations.
func openAuditDB(ctx context.Context, cfg config.AuditDatabaseConfig) (*database.DB, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
