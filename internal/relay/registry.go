package relay

import (
	"fmt"
	"sync"
	"time"
)

// timestampLayout is the record timestamp format: local wall-clock time,
// second resolution, no date.
const timestampLayout = "15:04:05"

// Population identifies one of the two device populations served by the relay.
type Population int

const (
	// PopulationA is the first device population.
	PopulationA Population = iota
	// PopulationB is the second device population.
	PopulationB

	populationCount = 2
)

// Populations lists every population in a stable order.
var Populations = []Population{PopulationA, PopulationB}

// String returns the population label ("A" or "B").
func (p Population) String() string {
	switch p {
	case PopulationA:
		return "A"
	case PopulationB:
		return "B"
	default:
		return fmt.Sprintf("Population(%d)", int(p))
	}
}

// Record is the latest message a device sent to its population's mailbox.
//
// The zero Record encodes as an empty JSON object and is the "not found"
// result of a lookup.
type Record struct {
	DeviceID  string `json:"device_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// IsZero reports whether r is the not-found record.
func (r Record) IsZero() bool {
	return r == Record{}
}

// mailbox holds the latest record per device for one population.
// Records are values, so a reader never observes a partially written record.
type mailbox struct {
	mu      sync.RWMutex
	records map[string]Record
}

func newMailbox() *mailbox {
	return &mailbox{records: make(map[string]Record)}
}

func (m *mailbox) put(rec Record) {
	m.mu.Lock()
	m.records[rec.DeviceID] = rec
	m.mu.Unlock()
}

func (m *mailbox) get(deviceID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[deviceID]
	return rec, ok
}

func (m *mailbox) snapshot() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for id, rec := range m.records {
		out[id] = rec
	}
	return out
}

func (m *mailbox) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Registry keeps the most recent record per device, independently for each
// population. Writes replace; nothing is ever deleted.
//
// All methods are safe for concurrent use. Callers need no external locking.
type Registry struct {
	boxes [populationCount]*mailbox
	now   func() time.Time
}

// NewRegistry creates an empty registry using the wall clock for timestamps.
func NewRegistry() *Registry {
	return newRegistryWithClock(time.Now)
}

func newRegistryWithClock(now func() time.Time) *Registry {
	r := &Registry{now: now}
	for i := range r.boxes {
		r.boxes[i] = newMailbox()
	}
	return r
}

// box returns the mailbox for p. Unknown populations panic: they can only
// come from a programming error, never from request input.
func (r *Registry) box(p Population) *mailbox {
	if p < 0 || int(p) >= populationCount {
		panic(fmt.Sprintf("relay: unknown population %d", int(p)))
	}
	return r.boxes[p]
}

// Put stores message as the latest record for deviceID in population p,
// replacing any previous record, and returns the stored record.
// deviceID validation is the caller's job.
func (r *Registry) Put(p Population, deviceID, message string) Record {
	rec := Record{
		DeviceID:  deviceID,
		Message:   message,
		Timestamp: r.now().Format(timestampLayout),
	}
	r.box(p).put(rec)
	return rec
}

// Get returns the current record for deviceID in population p.
// When the device has never written, it returns the zero Record and false.
func (r *Registry) Get(p Population, deviceID string) (Record, bool) {
	return r.box(p).get(deviceID)
}

// All returns a snapshot of every record in population p, keyed by device ID.
// The returned map is never nil and is owned by the caller.
func (r *Registry) All(p Population) map[string]Record {
	return r.box(p).snapshot()
}

// Count returns the number of devices with a record in population p.
func (r *Registry) Count(p Population) int {
	return r.box(p).count()
}
