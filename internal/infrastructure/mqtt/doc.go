// Package mqtt mirrors relay mailboxes onto an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained online/offline status with Last Will and Testament
//   - A relay.Observer that publishes every stored record, retained, to
//     <prefix>/<population>/<device_id>
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is off-host
//   - Record payloads are device-supplied text and are not encrypted beyond TLS
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mirror := mqtt.NewMirror(client, cfg.MQTT, logger)
//	go mirror.Run(ctx)
//	// pass mirror in relay.Options.Observers
package mqtt
