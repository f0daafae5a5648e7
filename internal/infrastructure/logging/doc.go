// Package logging builds the relaybox slog logger from config.
//
// Three formats are supported: "json" (the default, for log shippers),
// "text" (slog's key=value form) and "pretty" (colour output through tint,
// for a terminal). Every record carries service=relaybox and the build
// version; components add their own "component" attribute with With.
//
//	logging:
//	  level: info       # debug, info, warn, error
//	  format: json      # json, text, pretty
//	  output: stdout    # stdout, stderr
//
// Sink turns the logger into a relay.LogSink, so relay traffic lines appear
// in the process log next to the structured diagnostics.
package logging
