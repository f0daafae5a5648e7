package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// contentType is used for every relay response.
const contentType = "application/json; charset=utf-8"

// serverLabel names the relay itself in log lines.
const serverLabel = "relay"

// snapshotID stands in for the device id when a whole population is read.
const snapshotID = "*"

// successEnvelope is the body of every successful relay response.
type successEnvelope struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Data    any    `json:"data"`
}

// failureEnvelope is the body of every rejected relay response.
type failureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// routes builds the relay router. Routing is by path only: any method on a
// known path reaches its handler, and everything else gets the failure
// envelope with status 200.
func (in *instance) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID)
	r.Use(in.svc.debugLog)
	r.Use(in.svc.recoverToEnvelope)
	r.Use(limitBody)

	endpoints := map[string]http.HandlerFunc{
		"/api/a_send": in.handleSend(PopulationA),
		"/api/b_send": in.handleSend(PopulationB),
		"/api/a_data": in.handleData(PopulationA),
		"/api/b_data": in.handleData(PopulationB),
	}
	for path, h := range endpoints {
		r.HandleFunc(path, h)
	}

	r.NotFound(handleNotFound)
	// chi only matches the standard methods on a route; anything else
	// (PROPFIND, custom verbs) lands here and is dispatched by path.
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		if h, ok := endpoints[req.URL.Path]; ok {
			h(w, req)
			return
		}
		handleNotFound(w, req)
	})

	return r
}

// handleSend stores the posted message as the device's latest record.
func (in *instance) handleSend(p Population) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in.requests.Add(1)

		fields := decodeObject(r)
		deviceID := optString(fields, "device_id")
		message := optString(fields, "message")

		if deviceID == "" || message == "" {
			in.notify(Event{Kind: EventRejected, Population: p, DeviceID: deviceID})
			writeFailure(w, msgMissingFields)
			return
		}

		rec := in.registry.Put(p, deviceID, message)
		line := fmt.Sprintf("%s[%s] ->%s:%s", p, deviceID, serverLabel, message)
		in.emit(line)
		in.notify(Event{Kind: EventSend, Population: p, DeviceID: deviceID, Record: rec, Line: line})

		writeSuccess(w, fmt.Sprintf("%s device %s saved", p, deviceID), rec)
	}
}

// handleData returns one device's record when device_id is present in the
// query (even when empty), or the whole population otherwise.
func (in *instance) handleData(p Population) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in.requests.Add(1)

		query := r.URL.Query()
		if !query.Has("device_id") {
			all := in.registry.All(p)
			line := fmt.Sprintf("%s[%s] ->%s:%s", serverLabel, snapshotID, p, encodeForLog(all))
			in.emit(line)
			in.notify(Event{Kind: EventSnapshot, Population: p, DeviceID: snapshotID, Entries: len(all), Line: line})
			writeSuccess(w, "OK", all)
			return
		}

		deviceID := query.Get("device_id")
		rec, found := in.registry.Get(p, deviceID)
		line := fmt.Sprintf("%s[%s] ->%s:%s", serverLabel, deviceID, p, encodeForLog(rec))
		in.emit(line)
		in.notify(Event{Kind: EventRead, Population: p, DeviceID: deviceID, Record: rec, Found: found, Line: line})
		writeSuccess(w, "OK", rec)
	}
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, msgEndpointNotFound)
}

func (in *instance) emit(line string) {
	safeEmit(in.svc.sink, line)
}

func (in *instance) notify(ev Event) {
	ev.At = in.svc.now()
	for _, o := range in.svc.observers {
		o.Observe(ev)
	}
}

// decodeObject reads the request body as a JSON object. Anything that is not
// a JSON object (empty body, malformed JSON, arrays, scalars) yields an empty
// map so that validation reports the missing fields.
func decodeObject(r *http.Request) map[string]any {
	fields := map[string]any{}
	if r.Body == nil {
		return fields
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fields
	}
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return fields
}

// optString returns fields[key] as a string. Numbers and booleans are
// rendered in their JSON form; null, objects and arrays count as absent.
func optString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func encodeForLog(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func writeSuccess(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, successEnvelope{Success: true, Msg: msg, Data: data})
}

func writeFailure(w http.ResponseWriter, reason string) {
	writeJSON(w, failureEnvelope{Success: false, Error: reason})
}

// writeJSON writes v with status 200. Application errors never change the
// status code.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}
