// Package influxdb records relay request metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring, and adds a
// relay.Observer that writes one relay_requests point per handled request.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	recorder := influxdb.NewRecorder(client)
//	// pass recorder in relay.Options.Observers
//
// # Error Handling
//
// Writes are batched according to batch_size and flush_interval; batch
// failures are delivered to the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb
