package relay

import "time"

// LogSink receives one human-readable line per handled request.
//
// Implementations are called synchronously from request goroutines and must
// be safe for concurrent use. A slow sink only delays the request that
// produced the line. Emit must not panic; if it does, the relay recovers and
// drops the line.
type LogSink interface {
	Emit(line string)
}

// LogSinkFunc adapts an ordinary function to LogSink.
type LogSinkFunc func(line string)

// Emit calls f(line).
func (f LogSinkFunc) Emit(line string) { f(line) }

// MultiSink fans every line out to each sink in order.
type MultiSink []LogSink

// Emit forwards line to every sink. A panicking sink does not prevent the
// others from receiving the line.
func (m MultiSink) Emit(line string) {
	for _, s := range m {
		safeEmit(s, line)
	}
}

type discardSink struct{}

func (discardSink) Emit(string) {}

func safeEmit(s LogSink, line string) {
	defer func() {
		_ = recover() //nolint:errcheck // sinks are best-effort
	}()
	s.Emit(line)
}

// EventKind describes what a handled request did.
type EventKind string

const (
	// EventSend is a successful write to a mailbox.
	EventSend EventKind = "send"
	// EventRead is a single-device lookup, found or not.
	EventRead EventKind = "read"
	// EventSnapshot is a whole-population read.
	EventSnapshot EventKind = "snapshot"
	// EventRejected is a send with a missing device_id or message.
	EventRejected EventKind = "rejected"
)

// Event is the typed counterpart of a log line, delivered to observers.
type Event struct {
	Kind       EventKind
	Population Population
	DeviceID   string
	Record     Record // set for send and found reads
	Found      bool   // read: whether the device had a record
	Entries    int    // snapshot: number of records returned
	Line       string // the log line emitted for this request, if any
	At         time.Time
}

// Observer consumes relay events, for mirroring or metrics.
//
// Observe runs on the request goroutine after the response data is decided.
// Implementations doing network I/O should queue and return quickly.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts an ordinary function to Observer.
type ObserverFunc func(ev Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }
