package influxdb

import (
	"time"

	"github.com/nerrad567/relaybox/internal/relay"
)

// MeasurementRequests is the measurement every relay request is written to.
const MeasurementRequests = "relay_requests"

// PointWriter is the part of Client the recorder needs.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Recorder is a relay.Observer writing one relay_requests point per request.
//
// Tags: kind (send, read, snapshot, rejected), population (A, B).
// Fields: count (always 1), message_bytes, entries.
type Recorder struct {
	w   PointWriter
	now func() time.Time
}

// NewRecorder returns a Recorder writing through w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// Observe records ev. The underlying write API buffers, so this does not
// block on the network.
func (r *Recorder) Observe(ev relay.Event) {
	at := ev.At
	if at.IsZero() {
		at = r.now()
	}

	r.w.WritePointWithTime(MeasurementRequests,
		map[string]string{
			"kind":       string(ev.Kind),
			"population": ev.Population.String(),
		},
		map[string]any{
			"count":         1,
			"message_bytes": len(ev.Record.Message),
			"entries":       ev.Entries,
		},
		at,
	)
}
