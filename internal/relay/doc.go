// Package relay implements the relay mailbox: two device populations, A and
// B, that exchange short text messages by polling a shared HTTP intermediary.
//
// Each population has its own mailbox holding only the latest message per
// device. Devices write with POST /api/a_send or /api/b_send and read with
// GET /api/a_data or /api/b_data, optionally narrowed by ?device_id=.
// Every response is HTTP 200 with a JSON envelope:
//
//	{"success": true, "msg": "OK", "data": {...}}
//	{"success": false, "error": "endpoint not found"}
//
// A Service is created stopped:
//
//	svc := relay.New(relay.Options{Sink: sink, Logger: logger})
//	if err := svc.Start("0.0.0.0", 12123); err != nil {
//	    var bindErr *relay.BindError
//	    if errors.As(err, &bindErr) { ... }
//	}
//	defer svc.Stop()
//
// Each Start gets a fresh, empty registry. Nothing survives Stop.
//
// Every recognized request produces one line on the LogSink, for example
// "A[dev1] ->relay:hello" or "relay[dev1] ->A:{...}", and a typed Event for
// each Observer.
package relay
