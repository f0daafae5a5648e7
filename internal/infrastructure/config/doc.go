// Package config loads relaybox settings.
//
// Values come from Default, then the YAML file (if a path is given), then
// RELAYBOX_* environment variables such as RELAYBOX_RELAY_PORT or
// RELAYBOX_MQTT_PASSWORD. Validate reports every problem at once.
//
// No file is needed to run a relay on 0.0.0.0:12123 with the console on
// 127.0.0.1:12124. The MQTT mirror, InfluxDB metrics and mDNS stay off
// until enabled.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
package config
